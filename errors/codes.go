package errors

type Code string

const (
	ErrAborted           Code = "aborted"
	ErrBadRequest        Code = "bad-request"
	ErrCommunication     Code = "communication"
	ErrProtocolViolation Code = "protocol-violation"
	ErrFatal             Code = "fatal"
	ErrNotFound          Code = "not-found"
	ErrInternal          Code = "internal"
	ErrUnexpected        Code = "unexpected"
)

type Kind string

const (
	// KindContextAborted is used when we were currently performing an operation
	// but the context got aborted.
	KindContextAborted Kind = "context-aborted"
	// KindDB is used for general database problems.
	KindDB Kind = "db"
	// KindDBRollback is used when rolling back a transaction fails.
	KindDBRollback Kind = "db-rollback"
	// KindDecodeJSON is used when JSON payloads cannot be decoded.
	KindDecodeJSON Kind = "decode-json"
	// KindEncodeJSON is used when payloads cannot be encoded as JSON.
	KindEncodeJSON Kind = "encode-json"
	// KindFieldOutOfDomain is used when a frame field decodes structurally but
	// its raw value lies outside the closed set for its type.
	KindFieldOutOfDomain Kind = "field-out-of-domain"
	// KindResourceNotFound is used when a requested entity does not exist.
	KindResourceNotFound Kind = "resource-not-found"
	// KindShortBuffer is used when a frame is too short to even read the
	// command header.
	KindShortBuffer Kind = "short-buffer"
	// KindShouldNotHappen is used for states that are impossible when all
	// invariants hold.
	KindShouldNotHappen Kind = "should-not-happen"
	// KindTruncatedFrame is used when a frame is shorter than the minimum
	// length its command requires.
	KindTruncatedFrame Kind = "truncated-frame"
	// KindUnexpected is used for different unknown problems that are too
	// special for creating separate error kinds.
	KindUnexpected Kind = "unexpected"
	// KindUnknownCommand is used when a frame carries a command id with no
	// registered decoder.
	KindUnknownCommand Kind = "unknown-command"
	// KindUnknownEvent is used when an event frame carries an event id with no
	// registered decoder.
	KindUnknownEvent Kind = "unknown-event"
	// KindUnknownTrain is used when an unknown train is being requested.
	KindUnknownTrain Kind = "unknown-train"
	// KindWrongResponse is used when a response frame answers a request of a
	// different kind than the outstanding one.
	KindWrongResponse Kind = "wrong-response"
)
