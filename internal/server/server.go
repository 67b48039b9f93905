package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cristianradulescu/format-ls/internal/config"
	"github.com/cristianradulescu/format-ls/internal/container"
	"github.com/cristianradulescu/format-ls/internal/dispatch"
	"github.com/cristianradulescu/format-ls/internal/formatting"
	"github.com/cristianradulescu/format-ls/internal/logging"
	"github.com/cristianradulescu/format-ls/internal/utils"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

const (
	formattingDebounceInterval = 100 * time.Millisecond
)

type document struct {
	languageID string
	text       string
}

// Server represents the Language Server Protocol (LSP) server
type Server struct {
	conn         jsonrpc2.Conn
	serverConfig *config.Config
	projectRoot  string

	registry   *formatting.Registry
	dispatcher *dispatch.Dispatcher

	shuttingDown atomic.Bool

	// In-memory document cache for synchronized content
	docMu     sync.RWMutex
	documents map[protocol.DocumentURI]document

	// Debounce for formatting (per-file) with last-wins strategy
	fmtMu     sync.Mutex
	fmtTimers map[protocol.DocumentURI]*time.Timer
	fmtGen    map[protocol.DocumentURI]uint64
}

type options struct {
	runner    container.CommandRunner
	registry  []formatting.RegistryOption
	scheduler dispatch.Scheduler
}

type Option func(*options)

func WithCommandRunner(runner container.CommandRunner) Option {
	return func(o *options) {
		o.runner = runner
	}
}

func WithRegistryOptions(opts ...formatting.RegistryOption) Option {
	return func(o *options) {
		o.registry = append(o.registry, opts...)
	}
}

func WithScheduler(scheduler dispatch.Scheduler) Option {
	return func(o *options) {
		o.scheduler = scheduler
	}
}

// New creates a new LSP server instance
func New(conn jsonrpc2.Conn, opts ...Option) *Server {
	o := options{
		runner:    container.NewCommandRunner(),
		scheduler: dispatch.TimerScheduler{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		conn:         conn,
		serverConfig: &config.Config{},
		registry:     formatting.NewRegistry(o.runner, o.registry...),
		documents:    make(map[protocol.DocumentURI]document),
		fmtTimers:    make(map[protocol.DocumentURI]*time.Timer),
		fmtGen:       make(map[protocol.DocumentURI]uint64),
	}
	s.dispatcher = dispatch.New(s.registry,
		dispatch.WithReporter(dispatch.ReporterFunc(s.reportError)),
		dispatch.WithScheduler(o.scheduler),
	)

	return s
}

func (s *Server) Handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	log.Printf("%s%s Received request: %s", logging.LogTagLSP, logging.LogTagServer, req.Method())

	switch req.Method() {
	case protocol.MethodInitialize:
		return s.handleInitialize(ctx, reply, req)
	case protocol.MethodInitialized:
		return s.handleInitialized(ctx, reply, req)
	case protocol.MethodWorkspaceExecuteCommand:
		return s.handleExecuteCommand(ctx, reply, req)
	case protocol.MethodTextDocumentDidOpen:
		return s.handleDidOpen(ctx, reply, req)
	case protocol.MethodTextDocumentDidChange:
		return s.handleDidChange(ctx, reply, req)
	case protocol.MethodTextDocumentDidClose:
		return s.handleDidClose(ctx, reply, req)
	case protocol.MethodTextDocumentDidSave:
		return s.handleDidSave(ctx, reply, req)
	case protocol.MethodTextDocumentWillSaveWaitUntil:
		return s.handleWillSaveWaitUntil(ctx, reply, req)
	case protocol.MethodTextDocumentFormatting:
		return s.handleDocumentFormatting(ctx, reply, req)
	case protocol.MethodTextDocumentRangeFormatting:
		return s.handleDocumentRangeFormatting(ctx, reply, req)
	case protocol.MethodWorkspaceDidChangeWatchedFiles:
		return s.handleDidChangeWatchedFiles(ctx, reply, req)
	case protocol.MethodShutdown:
		return s.handleShutdown(ctx, reply, req)
	case protocol.MethodExit:
		return s.handleExit(ctx, reply, req)
	case protocol.MethodCancelRequest:
		return s.handleCancelRequest(ctx, reply, req)
	default:
		log.Printf("%s%s Unhandled method: %s", logging.LogTagLSP, logging.LogTagServer, req.Method())
		return reply(ctx, nil, nil)
	}
}

func (s *Server) handleInitialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	log.Printf("%s%s Handling initialize request", logging.LogTagLSP, logging.LogTagServer)

	var params protocol.InitializeParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling initialize params: %v", logging.LogTagLSP, logging.LogTagServer, err)

		return err
	}

	if params.ClientInfo != nil {
		log.Printf("%s%s Client info: name=%s, version=%s", logging.LogTagLSP, logging.LogTagServer, params.ClientInfo.Name, params.ClientInfo.Version)
	}

	if !s.serverConfig.IsInitialized() {
		// Determine project root from workspace folder URI or RootURI
		projectRoot := ""
		if len(params.WorkspaceFolders) > 0 && params.WorkspaceFolders[0].URI != "" {
			projectRoot = utils.URIToPath(protocol.DocumentURI(params.WorkspaceFolders[0].URI))
		} else if params.RootURI != "" {
			projectRoot = utils.URIToPath(params.RootURI)
		} else {
			if cwd, cwdErr := os.Getwd(); cwdErr == nil {
				projectRoot = cwd
			}
		}
		s.projectRoot = projectRoot

		s.loadConfig(ctx)
	}

	resp := protocol.InitializeResult{
		Capabilities: serverCapabilities(),
		ServerInfo:   serverInfo(),
	}

	return reply(ctx, resp, nil)
}

// loadConfig (re)reads the project config and repopulates the registry,
// which resets every format-on-save flag to its configured value.
func (s *Server) loadConfig(ctx context.Context) {
	serverConfig, err := (&config.Config{}).LoadConfig(s.projectRoot)
	if err != nil {
		log.Printf("%s%s No config: %v", logging.LogTagLSP, logging.LogTagServer, err)
		s.registry.Clear()
		s.showWindowMessage(ctx, protocol.MessageTypeWarning, fmt.Sprintf("%s: %v", config.Name, err))
		return
	}
	s.serverConfig = serverConfig
	log.Printf("%s%s Loaded config: %s", logging.LogTagLSP, logging.LogTagConfig, serverConfig.Path)

	for _, populateErr := range s.registry.Populate(ctx, serverConfig, s.projectRoot) {
		s.showWindowMessage(ctx, protocol.MessageTypeError, populateErr.Error())
	}
}

func (s *Server) handleInitialized(ctx context.Context, reply jsonrpc2.Replier, _ jsonrpc2.Request) error {
	log.Printf("%s%s Client initialized successfully", logging.LogTagLSP, logging.LogTagServer)

	return reply(ctx, nil, nil)
}

func (s *Server) handleDidOpen(ctx context.Context, _ jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling %s params: %v", logging.LogTagLSP, logging.LogTagServer, req.Method(), err)

		return err
	}

	s.setDocument(params.TextDocument.URI, document{
		languageID: string(params.TextDocument.LanguageID),
		text:       params.TextDocument.Text,
	})

	return nil
}

func (s *Server) handleDidChange(ctx context.Context, _ jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidChangeTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling %s params: %v", logging.LogTagLSP, logging.LogTagServer, req.Method(), err)

		return err
	}

	if len(params.ContentChanges) > 0 {
		lastChange := params.ContentChanges[len(params.ContentChanges)-1]
		s.setDocumentContent(params.TextDocument.URI, lastChange.Text)
	}

	return nil
}

func (s *Server) handleDidSave(ctx context.Context, _ jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidSaveTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling %s params: %v", logging.LogTagLSP, logging.LogTagServer, req.Method(), err)

		return err
	}

	if params.Text != "" {
		s.setDocumentContent(params.TextDocument.URI, params.Text)
	}

	return nil
}

func (s *Server) handleDidClose(ctx context.Context, _ jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidCloseTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling %s params: %v", logging.LogTagLSP, logging.LogTagServer, req.Method(), err)

		return err
	}

	s.deleteDocument(params.TextDocument.URI)

	return nil
}

// handleWillSaveWaitUntil runs format on save before the client writes the
// file. The reply is sent from a goroutine so the read loop keeps going.
func (s *Server) handleWillSaveWaitUntil(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.WillSaveTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling %s params: %v", logging.LogTagLSP, logging.LogTagServer, req.Method(), err)
		return err
	}

	go func() {
		doc, err := s.loadDocument(params.TextDocument.URI)
		if err != nil {
			_ = reply(ctx, []protocol.TextEdit{}, nil)
			return
		}

		view := newDocumentView(params.TextDocument.URI, doc)
		_, _ = s.dispatcher.OnSave(ctx, view)
		_ = reply(ctx, view.Edits(), nil)
	}()

	return nil
}

func (s *Server) handleDocumentFormatting(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentFormattingParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling document formatting params: %v", logging.LogTagLSP, logging.LogTagServer, err)
		return err
	}

	s.scheduleFormatting(ctx, reply, params)
	return nil
}

func (s *Server) handleDocumentRangeFormatting(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentRangeFormattingParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling range formatting params: %v", logging.LogTagLSP, logging.LogTagServer, err)
		return err
	}

	go func() {
		edits, err := s.formatSelection(ctx, params.TextDocument.URI, []protocol.Range{params.Range})
		if err != nil && !isReported(err) {
			_ = reply(ctx, nil, err)
			return
		}
		_ = reply(ctx, edits, nil)
	}()

	return nil
}

func (s *Server) scheduleFormatting(ctx context.Context, reply jsonrpc2.Replier, params protocol.DocumentFormattingParams) {
	uri := params.TextDocument.URI

	s.fmtMu.Lock()

	if timer, exists := s.fmtTimers[uri]; exists {
		timer.Stop()
	}

	if s.fmtGen == nil {
		s.fmtGen = make(map[protocol.DocumentURI]uint64)
	}
	s.fmtGen[uri]++
	gen := s.fmtGen[uri]

	s.fmtTimers[uri] = time.AfterFunc(formattingDebounceInterval, func() {
		s.fmtMu.Lock()
		delete(s.fmtTimers, uri)
		currentGen := s.fmtGen[uri]
		s.fmtMu.Unlock()

		if gen != currentGen {
			_ = reply(ctx, []protocol.TextEdit{}, nil)
			return
		}

		edits, err := s.formatFile(ctx, uri)
		if err != nil && !isReported(err) {
			_ = reply(ctx, nil, err)
			return
		}

		_ = reply(ctx, edits, nil)
	})
	s.fmtMu.Unlock()
}

// formatFile returns the edits formatting the whole document. Formatter
// failures were already reported and yield no edits.
func (s *Server) formatFile(ctx context.Context, uri protocol.DocumentURI) ([]protocol.TextEdit, error) {
	doc, err := s.loadDocument(uri)
	if err != nil {
		return nil, err
	}

	view := newDocumentView(uri, doc)
	err = s.dispatcher.FormatFile(ctx, view)

	return view.Edits(), err
}

func (s *Server) formatSelection(ctx context.Context, uri protocol.DocumentURI, ranges []protocol.Range) ([]protocol.TextEdit, error) {
	doc, err := s.loadDocument(uri)
	if err != nil {
		return nil, err
	}

	view := newDocumentView(uri, doc, ranges...)
	_, err = s.dispatcher.FormatSelection(ctx, view)

	return view.Edits(), err
}

func (s *Server) handleDidChangeWatchedFiles(ctx context.Context, _ jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidChangeWatchedFilesParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling %s params: %v", logging.LogTagLSP, logging.LogTagServer, req.Method(), err)

		return err
	}

	for _, change := range params.Changes {
		if !config.IsConfigFile(utils.URIToPath(change.URI)) {
			continue
		}

		log.Printf("%s%s Config file changed (%s), reloading", logging.LogTagLSP, logging.LogTagConfig, change.URI)
		s.loadConfig(ctx)
		break
	}

	return nil
}

func (s *Server) handleShutdown(ctx context.Context, reply jsonrpc2.Replier, _ jsonrpc2.Request) error {
	log.Printf("%s%s Performing cleanup before shutdown", logging.LogTagLSP, logging.LogTagServer)

	s.shuttingDown.Store(true)

	s.fmtMu.Lock()
	for uri, timer := range s.fmtTimers {
		timer.Stop()
		delete(s.fmtTimers, uri)
	}
	s.fmtMu.Unlock()

	return reply(ctx, nil, nil)
}

func (s *Server) handleExit(_ context.Context, _ jsonrpc2.Replier, _ jsonrpc2.Request) error {
	log.Printf("%s%s Exiting server", logging.LogTagLSP, logging.LogTagServer)

	s.registry.Clear()

	return s.conn.Close()
}

func (s *Server) handleCancelRequest(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params struct {
		ID interface{} `json:"id"`
	}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling cancel request params: %v", logging.LogTagLSP, logging.LogTagServer, err)
		return err
	}

	log.Printf("%s%s Client requested cancellation for request ID: %v", logging.LogTagLSP, logging.LogTagServer, params.ID)
	return reply(ctx, nil, nil)
}

func (s *Server) showWindowMessage(ctx context.Context, messageType protocol.MessageType, message string) {
	params := &protocol.ShowMessageParams{Type: messageType, Message: message}
	if err := s.conn.Notify(ctx, protocol.MethodWindowShowMessage, params); err != nil {
		log.Printf("%s%s Failed to send window message: %v", logging.LogTagLSP, logging.LogTagServer, err)
	}
}

// reportError is the dispatcher's diagnostic sink: a log line plus a
// window/logMessage, never a dialog.
func (s *Server) reportError(ctx context.Context, err error) {
	log.Printf("%s%s Format: %v", logging.LogTagLSP, logging.LogTagFormat, err)

	params := &protocol.LogMessageParams{Type: protocol.MessageTypeError, Message: fmt.Sprintf("Format: %v", err)}
	if notifyErr := s.conn.Notify(ctx, protocol.MethodWindowLogMessage, params); notifyErr != nil {
		log.Printf("%s%s Failed to send log message: %v", logging.LogTagLSP, logging.LogTagServer, notifyErr)
	}
}

func (s *Server) setDocument(uri protocol.DocumentURI, doc document) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	s.documents[uri] = doc
}

func (s *Server) setDocumentContent(uri protocol.DocumentURI, content string) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	doc := s.documents[uri]
	doc.text = content
	s.documents[uri] = doc
}

func (s *Server) getDocument(uri protocol.DocumentURI) (document, bool) {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	doc, exists := s.documents[uri]
	return doc, exists
}

func (s *Server) deleteDocument(uri protocol.DocumentURI) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	delete(s.documents, uri)
}

// isReported tells errors the dispatcher already logged, which end a request
// with no edits instead of an error reply.
func isReported(err error) bool {
	var formatErr *formatting.FormatError
	return errors.Is(err, formatting.ErrNoFormatter) || errors.As(err, &formatErr)
}

// loadDocument returns the synchronized document, or reads it from disk
// when the client never opened it.
func (s *Server) loadDocument(uri protocol.DocumentURI) (document, error) {
	if doc, exists := s.getDocument(uri); exists {
		return doc, nil
	}

	fileContent, err := os.ReadFile(utils.URIToPath(uri))
	if err != nil {
		return document{}, fmt.Errorf("failed to read file: %w", err)
	}

	return document{text: string(fileContent)}, nil
}
