// Package wire implements the framed binary protocol shared by the
// dispatcher and the worker. Encoding and decoding are pure functions over
// byte slices; nothing in this package touches a socket.
package wire

// Kind identifies which of the seven message variants a frame carries.
type Kind uint8

const (
	KindClientReady Kind = iota + 1
	KindServerTask
	KindServerModule
	KindClientAck
	KindClientResult
	KindServerAck
	KindHeartbeat
)

// Message is implemented by every wire variant.
type Message interface {
	Kind() Kind
}

// ModuleDescriptor names a module binary and its chunking parameters. The
// Digest field is a BLAKE3 content hash computed once by the dispatcher on
// registration and checked by the worker once assembly completes; it rides
// alongside the name/size/chunking fields spec.md specifies but is not part
// of the cache key (the name still is).
type ModuleDescriptor struct {
	Name        string
	Size        uint32
	ChunkSize   uint32
	TotalChunks uint32
	Digest      [32]byte
}

// ClientReady is sent once by a worker after it opens the channel.
type ClientReady struct {
	CachedModules []string
	FreeRAMBytes  uint32
}

func (ClientReady) Kind() Kind { return KindClientReady }

// ServerTask advertises a unit of work to a worker.
type ServerTask struct {
	TaskID uint64
	Module ModuleDescriptor
	Params []Value
}

func (ServerTask) Kind() Kind { return KindServerTask }

// ServerModule carries one chunk of a module binary.
type ServerModule struct {
	TaskID     uint64
	ChunkIndex uint32
	Data       []byte
}

func (ServerModule) Kind() Kind { return KindServerModule }

// AckInfoKind distinguishes the two ClientAck payload shapes.
type AckInfoKind uint8

const (
	AckInfoTask AckInfoKind = iota + 1
	AckInfoModule
)

// AckInfo is the tagged union carried by ClientAck.
type AckInfo struct {
	Kind AckInfoKind

	// Populated when Kind == AckInfoTask.
	CachedModules []string

	// Populated when Kind == AckInfoModule.
	ChunkIndex uint32
	Success    bool
}

// ClientAck replies to a ServerTask (AckInfoTask) or a ServerModule
// (AckInfoModule).
type ClientAck struct {
	TaskID uint64
	Info   AckInfo
}

func (ClientAck) Kind() Kind { return KindClientAck }

// ClientResult reports the typed return values of an executed module.
type ClientResult struct {
	TaskID  uint64
	Results []Value
}

func (ClientResult) Kind() Kind { return KindClientResult }

// ServerAck confirms receipt of a ClientResult.
type ServerAck struct {
	TaskID  uint64
	Success bool
}

func (ServerAck) Kind() Kind { return KindServerAck }

// Heartbeat carries a nanosecond timestamp in either direction.
type Heartbeat struct {
	TimestampNanos int64
}

func (Heartbeat) Kind() Kind { return KindHeartbeat }
