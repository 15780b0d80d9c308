package enum

type ConnectionStatus string

const (
	ConnectionActive    ConnectionStatus = "active"
	ConnectionNotActive ConnectionStatus = "not_active"
	ConnectionAuthError ConnectionStatus = "auth_error"
)

func (t ConnectionStatus) String() string {
	return string(t)
}

// PendingOperation kinds: local mutations not yet confirmed by the server.
type PendingOperationKind string

const (
	PendingSetFlag   PendingOperationKind = "set_flag"
	PendingClearFlag PendingOperationKind = "clear_flag"
	PendingDelete    PendingOperationKind = "delete"
)

func (t PendingOperationKind) String() string {
	return string(t)
}
