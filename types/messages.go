package types

// Kind is the message type discriminator for both protocol directions.
type Kind string

// Parent-to-worker message kinds.
const (
	KindInit    Kind = "init"
	KindCall    Kind = "call"
	KindDispose Kind = "dispose"
)

// Worker-to-parent message kinds.
const (
	KindInitialized      Kind = "initialized"
	KindResult           Kind = "result"
	KindRejection        Kind = "rejection"
	KindDisposeCompleted Kind = "dispose_completed"
)

// IsRequest returns true if this kind flows parent-to-worker.
func (k Kind) IsRequest() bool {
	return k == KindInit || k == KindCall || k == KindDispose
}

// IsReply returns true if this kind flows worker-to-parent.
func (k Kind) IsReply() bool {
	return k == KindInitialized || k == KindResult || k == KindRejection ||
		k == KindDisposeCompleted
}

// InitMessage bootstraps the remote object inside the worker.
// Sent exactly once, before any CallMessage.
type InitMessage struct {
	// Kind is always KindInit.
	Kind Kind `msgpack:"kind"`
	// Worker is the identity the worker adopts for its own logging.
	Worker WorkerMeta `msgpack:"worker"`
	// Plugins is the list of plugin names the bootstrap loads before
	// constructing the target.
	Plugins []string `msgpack:"plugins,omitempty"`
	// RequirePath selects the target factory inside the worker.
	RequirePath string `msgpack:"require_path"`
	// Args is the opaque constructor argument list for the target.
	Args []any `msgpack:"args,omitempty"`
	// WorkDir is the working directory the worker switches to, if set.
	WorkDir string `msgpack:"work_dir,omitempty"`
}

// CallMessage invokes a method on the remote object.
type CallMessage struct {
	// Kind is always KindCall.
	Kind Kind `msgpack:"kind"`
	// ID is the correlation id, unique among in-flight calls.
	ID uint64 `msgpack:"id"`
	// Method is the method name on the remote object.
	Method string `msgpack:"method"`
	// Args is the opaque argument list.
	Args []any `msgpack:"args,omitempty"`
}

// DisposeMessage requests graceful worker shutdown.
// At most one is ever sent per handle.
type DisposeMessage struct {
	// Kind is always KindDispose.
	Kind Kind `msgpack:"kind"`
}

// InitializedMessage signals that the remote object is constructed and
// the worker is ready to accept calls.
type InitializedMessage struct {
	// Kind is always KindInitialized.
	Kind Kind `msgpack:"kind"`
}

// ResultMessage carries a successful return value for one call.
type ResultMessage struct {
	// Kind is always KindResult.
	Kind Kind `msgpack:"kind"`
	// ID is the correlation id of the call being answered.
	ID uint64 `msgpack:"id"`
	// Value is the opaque return value.
	Value any `msgpack:"value"`
}

// RejectionMessage reports that a call failed inside the worker.
// Scoped to one call; the worker remains healthy.
type RejectionMessage struct {
	// Kind is always KindRejection.
	Kind Kind `msgpack:"kind"`
	// ID is the correlation id of the call being answered.
	ID uint64 `msgpack:"id"`
	// Error is the failure description.
	Error string `msgpack:"error"`
}

// DisposeCompletedMessage acknowledges graceful shutdown. After emitting it
// the worker may exit; the parent force-terminates regardless.
type DisposeCompletedMessage struct {
	// Kind is always KindDisposeCompleted.
	Kind Kind `msgpack:"kind"`
}
