package stack

import (
	"sync"

	"github.com/next-trace/scg-comms-stack/contract/comms"
)

var defaultStack = sync.OnceValue(func() *Stack { return New() })

// Default returns the process-wide stack the package-level functions use.
func Default() *Stack { return defaultStack() }

// Init initializes the process-wide stack. See Stack.Init.
func Init(appName, configPath string) bool { return Default().Init(appName, configPath) }

// Shutdown shuts the process-wide stack down. See Stack.Shutdown.
func Shutdown() { Default().Shutdown() }

// Publish publishes on the process-wide stack. See Stack.Publish.
func Publish(topic string, id int32, message string, timestampSeconds int64) bool {
	return Default().Publish(topic, id, message, timestampSeconds)
}

// Subscribe subscribes on the process-wide stack. See Stack.Subscribe.
func Subscribe(topic string, l comms.NotificationListener) int64 { return Default().Subscribe(topic, l) }

// Unsubscribe unsubscribes on the process-wide stack. See Stack.Unsubscribe.
func Unsubscribe(id int64) { Default().Unsubscribe(id) }

// CallEcho calls echo through the process-wide stack. See Stack.CallEcho.
func CallEcho(service, message string, l comms.EchoListener) { Default().CallEcho(service, message, l) }

// CallAdd calls add through the process-wide stack. See Stack.CallAdd.
func CallAdd(service string, a, b int32, l comms.AddListener) { Default().CallAdd(service, a, b, l) }
