/*
Package stack is the public face of the comms stack: publish/subscribe notifications and
request/response calls behind one lifecycle.

	if !stack.Init("demo", "") {
		return
	}
	defer stack.Shutdown()

	id := stack.Subscribe("sensors", comms.NotificationFuncs{Notification: onReading})
	stack.Publish("sensors", 1, "21.5C", time.Now().Unix())
	stack.CallAdd("calculator", 2, 3, comms.AddFuncs{Response: onSum, Error: onErr})
	stack.Unsubscribe(id)

Every operation except Init fails fast while the stack is not active: Publish returns false,
Subscribe returns -1 and calls report comms.not_active through OnError. Listener callbacks run
on internal goroutines. A listener must not unsubscribe itself or shut the stack down from inside
its own callback; hand that off with go instead.
*/
package stack
