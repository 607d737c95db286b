package dualstd

import (
	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/crypto"
	"github.com/cryguy/dualstd/internal/fetch"
	"github.com/cryguy/dualstd/internal/fs"
	"github.com/cryguy/dualstd/internal/hosterr"
	"github.com/cryguy/dualstd/internal/socket"
	"github.com/cryguy/dualstd/internal/storage"
)

// Type aliases re-exporting the internal packages so callers can write
// dualstd.Connection, dualstd.Text, etc.

type Config = core.Config
type Runtime = core.Runtime

type Socket = socket.Socket
type Connection = socket.Connection
type ConnectOptions = socket.ConnectOptions
type ReadyState = socket.ReadyState
type EventType = socket.EventType
type Event = socket.Event
type Listener = socket.Listener
type Data = socket.Data
type Text = socket.Text
type Binary = socket.Binary
type View = socket.View

type Storage = storage.Storage
type Fetcher = fetch.Fetcher
type FetchInit = fetch.Init
type FetchTask = fetch.Task
type Response = fetch.Response
type FS = fs.FS
type FileInfo = fs.FileInfo
type Random = crypto.Random

type Error = hosterr.Error
type ErrorKind = hosterr.Kind

const (
	RuntimeWeb      = core.RuntimeWeb
	RuntimeMiniGame = core.RuntimeMiniGame

	Connecting = socket.Connecting
	Open       = socket.Open
	Closing    = socket.Closing
	Closed     = socket.Closed

	EventOpen    = socket.EventOpen
	EventClose   = socket.EventClose
	EventMessage = socket.EventMessage
	EventError   = socket.EventError

	KindAbort    = hosterr.KindAbort
	KindTimeout  = hosterr.KindTimeout
	KindNotFound = hosterr.KindNotFound
)

// Errors re-exported for errors.Is.
var (
	ErrInsecureURL      = socket.ErrInsecureURL
	ErrUnsupportedEvent = socket.ErrUnsupportedEvent
	ErrInvalidClose     = socket.ErrInvalidClose
	ErrAbort            = hosterr.ErrAbort
	ErrTimeout          = hosterr.ErrTimeout
	ErrNotFound         = hosterr.ErrNotFound
)

// Functions re-exported from core and hosterr.
var (
	ParseRuntime        = core.ParseRuntime
	IsAlreadyExists     = hosterr.IsAlreadyExists
	IgnoreAlreadyExists = hosterr.IgnoreAlreadyExists
)
