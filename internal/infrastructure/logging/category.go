package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	IO              Category = "IO"
	Internal        Category = "Internal"
	Room            Category = "Room"
	Store           Category = "Store"
	Redis           Category = "Redis"
	Badger          Category = "Badger"
	MongoDB         Category = "MongoDB"
	RabbitMQ        Category = "RabbitMQ"
	WebSocket       Category = "WebSocket"
	Validation      Category = "Validation"
	RequestResponse Category = "RequestResponse"
	Prometheus      Category = "Prometheus"
	Tracing         Category = "Tracing"
	Balancer        Category = "Balancer"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"

	// Room
	Join    SubCategory = "Join"
	Leave   SubCategory = "Leave"
	Send    SubCategory = "Send"
	Read    SubCategory = "Read"
	Cleanup SubCategory = "Cleanup"

	// Transport
	Connect    SubCategory = "Connect"
	Disconnect SubCategory = "Disconnect"
	Broadcast  SubCategory = "Broadcast"
	Publish    SubCategory = "Publish"
	Consume    SubCategory = "Consume"
	Conflict   SubCategory = "Conflict"
	Forward    SubCategory = "Forward"
	Health     SubCategory = "Health"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	ClientIp     ExtraKey = "ClientIp"
	HostIp       ExtraKey = "HostIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	BodySize     ExtraKey = "BodySize"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	RequestBody  ExtraKey = "RequestBody"
	ResponseBody ExtraKey = "ResponseBody"
	ErrorMessage ExtraKey = "ErrorMessage"
	RoomCode     ExtraKey = "RoomCode"
	UserID       ExtraKey = "UserId"
	ConnectionID ExtraKey = "ConnectionId"
	EventType    ExtraKey = "EventType"
	Attempt      ExtraKey = "Attempt"
	Backend      ExtraKey = "Backend"
	MemberCount  ExtraKey = "MemberCount"
	Status       ExtraKey = "Status"
)
