package errs

const (
	ServerInternalError = 500
	ArgsError           = 1001
	RecordNotFound      = 1002

	TransportNotReady = 1101
	TransportClosed   = 1102
	ConnNotFound      = 1103
	SendQueueFull     = 1104
	SocketClosed      = 1105

	UnknownEvent   = 1201
	InvalidPayload = 1202

	StoreNotReady = 1301
)

var (
	ErrInternalServer = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrArgs           = NewCodeError(ArgsError, "ArgsError")
	ErrRecordNotFound = NewCodeError(RecordNotFound, "RecordNotFoundError")

	ErrTransportNotReady = NewCodeError(TransportNotReady, "TransportNotReady")
	ErrTransportClosed   = NewCodeError(TransportClosed, "TransportClosed")
	ErrConnNotFound      = NewCodeError(ConnNotFound, "ConnNotFound")
	ErrSendQueueFull     = NewCodeError(SendQueueFull, "SendQueueFull")
	ErrSocketClosed      = NewCodeError(SocketClosed, "SocketClosed")

	ErrUnknownEvent   = NewCodeError(UnknownEvent, "UnknownEvent")
	ErrInvalidPayload = NewCodeError(InvalidPayload, "InvalidPayload")

	ErrStoreNotReady = NewCodeError(StoreNotReady, "StoreNotReady")
)
