package domain

type Role string

const (
	RolePublisher  Role = "sender"
	RoleSubscriber Role = "receiver"
)

func (r Role) Valid() bool {
	return r == RolePublisher || r == RoleSubscriber
}

// Connection is one live transport session. Send never blocks; it fails
// once the transport is closed or its outbound queue is full.
type Connection interface {
	ID() string
	Send(data []byte) error
	Open() bool
	Close() error
}

type Lifecycle interface {
	Connect(conn Connection)
	Disconnect(conn Connection)
}

type MessageHandler interface {
	Handle(conn Connection, data []byte)
}
