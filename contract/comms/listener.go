package comms

// NotificationListener receives notifications for one subscription.
// Calls for a subscription are serialized and arrive in wire order on an internal goroutine.
type NotificationListener interface {
	OnNotification(id int32, message string, timestampSeconds int64)
	OnError(message string)
}

// EchoListener receives the outcome of one echo call. Exactly one method fires, once.
type EchoListener interface {
	OnResponse(message string)
	OnError(message string)
}

// AddListener receives the outcome of one add call. Exactly one method fires, once.
type AddListener interface {
	OnResponse(sum int32)
	OnError(message string)
}

// NotificationFuncs adapts plain functions to NotificationListener. Nil fields are skipped.
type NotificationFuncs struct {
	Notification func(id int32, message string, timestampSeconds int64)
	Error        func(message string)
}

func (f NotificationFuncs) OnNotification(id int32, message string, timestampSeconds int64) {
	if f.Notification != nil {
		f.Notification(id, message, timestampSeconds)
	}
}

func (f NotificationFuncs) OnError(message string) {
	if f.Error != nil {
		f.Error(message)
	}
}

// EchoFuncs adapts plain functions to EchoListener. Nil fields are skipped.
type EchoFuncs struct {
	Response func(message string)
	Error    func(message string)
}

func (f EchoFuncs) OnResponse(message string) {
	if f.Response != nil {
		f.Response(message)
	}
}

func (f EchoFuncs) OnError(message string) {
	if f.Error != nil {
		f.Error(message)
	}
}

// AddFuncs adapts plain functions to AddListener. Nil fields are skipped.
type AddFuncs struct {
	Response func(sum int32)
	Error    func(message string)
}

func (f AddFuncs) OnResponse(sum int32) {
	if f.Response != nil {
		f.Response(sum)
	}
}

func (f AddFuncs) OnError(message string) {
	if f.Error != nil {
		f.Error(message)
	}
}

var (
	_ NotificationListener = NotificationFuncs{}
	_ EchoListener         = EchoFuncs{}
	_ AddListener          = AddFuncs{}
)
