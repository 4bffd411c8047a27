package focus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/rbright/scrivo/internal/hypr"
)

const (
	a11yBusName    = "org.a11y.Bus"
	a11yBusPath    = "/org/a11y/bus"
	a11yBusIface   = "org.a11y.Bus"
	atspiService   = "org.a11y.atspi.Registry"
	atspiRootPath  = "/org/a11y/atspi/accessible/root"
	accessibleIfce = "org.a11y.atspi.Accessible"
	collectionIfce = "org.a11y.atspi.Collection"
	editableIfce   = "org.a11y.atspi.EditableText"
	textIfce       = "org.a11y.atspi.Text"

	// AT-SPI state enum value for FOCUSED; state sets marshal as two
	// 32-bit words.
	stateFocusedBit = uint32(1) << 12

	queryTimeout = 250 * time.Millisecond
)

// matchRule mirrors the org.a11y.atspi.Collection match-rule wire struct.
type matchRule struct {
	States         []int32
	StateMatch     int32
	Attributes     map[string]string
	AttributeMatch int32
	Roles          []int32
	RoleMatch      int32
	Interfaces     []string
	InterfaceMatch int32
	Invert         bool
}

const matchAll = int32(1)

// AtspiTracker resolves focus through the accessibility bus, falling back to
// hyprctl for app identity when AT-SPI gives no answer.
type AtspiTracker struct {
	logger *slog.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

func NewAtspiTracker(logger *slog.Logger) *AtspiTracker {
	return &AtspiTracker{logger: logger}
}

// Resolve never fails; every degradation path yields EditableUnknown so the
// orchestrator can apply its unknown-focus policy.
func (t *AtspiTracker) Resolve(ctx context.Context) Context {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	resolved, err := t.queryAtspi(queryCtx)
	if err != nil {
		t.logger.Debug("atspi focus query failed", "error", err)
		resolved = Context{Editable: EditableUnknown}
	}

	if resolved.AppID == "" {
		if window, werr := hypr.QueryActiveWindow(queryCtx); werr == nil {
			resolved.AppID = appIDFromWindow(window)
			if resolved.WindowTitle == "" {
				resolved.WindowTitle = window.Title
			}
		}
	}

	return resolved
}

// Warm establishes the accessibility bus connection and primes the focused
// accessible lookup so the first delivery does not pay connection latency.
func (t *AtspiTracker) Warm(ctx context.Context) error {
	_, err := t.queryAtspi(ctx)
	return err
}

// InsertText inserts text at the caret of the focused editable widget.
func (t *AtspiTracker) InsertText(ctx context.Context, text string) error {
	conn, focused, err := t.focusedEditable(ctx)
	if err != nil {
		return err
	}

	caret := caretOffset(conn, *focused)

	var success bool
	obj := conn.Object(focused.Service, focused.Path)
	err = obj.CallWithContext(ctx, editableIfce+".InsertText", 0, caret, text, int32(len([]rune(text)))).
		Store(&success)
	if err != nil {
		t.dropConnection(conn)
		return fmt.Errorf("atspi insert: %w", err)
	}
	if !success {
		return fmt.Errorf("atspi insert rejected by target")
	}
	return nil
}

// PasteAtCaret triggers the target's own paste action at the caret.
func (t *AtspiTracker) PasteAtCaret(ctx context.Context) error {
	conn, focused, err := t.focusedEditable(ctx)
	if err != nil {
		return err
	}

	caret := caretOffset(conn, *focused)

	var success bool
	obj := conn.Object(focused.Service, focused.Path)
	err = obj.CallWithContext(ctx, editableIfce+".PasteText", 0, caret).Store(&success)
	if err != nil {
		t.dropConnection(conn)
		return fmt.Errorf("atspi paste: %w", err)
	}
	if !success {
		return fmt.Errorf("atspi paste rejected by target")
	}
	return nil
}

func (t *AtspiTracker) focusedEditable(ctx context.Context) (*dbus.Conn, *accessibleRef, error) {
	conn, err := t.accessibilityBus(ctx)
	if err != nil {
		return nil, nil, err
	}

	focused, err := findFocusedAccessible(ctx, conn)
	if err != nil {
		t.dropConnection(conn)
		return nil, nil, err
	}
	if focused == nil {
		return nil, nil, fmt.Errorf("no focused accessible")
	}

	interfaces, err := accessibleInterfaces(ctx, conn, *focused)
	if err != nil {
		return nil, nil, err
	}
	if !hasEditableInterface(interfaces) {
		return nil, nil, fmt.Errorf("focused accessible is not editable")
	}
	return conn, focused, nil
}

// caretOffset reads the caret position, defaulting to 0 when unavailable.
func caretOffset(conn *dbus.Conn, ref accessibleRef) int32 {
	obj := conn.Object(ref.Service, ref.Path)
	variant, err := obj.GetProperty(textIfce + ".CaretOffset")
	if err != nil {
		return 0
	}
	if offset, ok := variant.Value().(int32); ok && offset >= 0 {
		return offset
	}
	return 0
}

// Close drops the accessibility bus connection.
func (t *AtspiTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *AtspiTracker) queryAtspi(ctx context.Context) (Context, error) {
	conn, err := t.accessibilityBus(ctx)
	if err != nil {
		return Context{}, err
	}

	focused, err := findFocusedAccessible(ctx, conn)
	if err != nil {
		t.dropConnection(conn)
		return Context{}, err
	}
	if focused == nil {
		// Bus answered but nothing holds focus.
		return Context{Editable: EditableUnknown}, nil
	}

	resolved := Context{Editable: EditableNo}

	interfaces, err := accessibleInterfaces(ctx, conn, *focused)
	if err != nil {
		resolved.Editable = EditableUnknown
	} else if hasEditableInterface(interfaces) {
		resolved.Editable = EditableYes
	}

	if name, nerr := accessibleApplicationName(ctx, conn, *focused); nerr == nil {
		resolved.AppID = name
	}

	return resolved, nil
}

// accessibilityBus connects to the dedicated a11y bus advertised on the
// session bus.
func (t *AtspiTracker) accessibilityBus(ctx context.Context) (*dbus.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return t.conn, nil
	}

	session, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	var address string
	obj := session.Object(a11yBusName, dbus.ObjectPath(a11yBusPath))
	if err := obj.CallWithContext(ctx, a11yBusIface+".GetAddress", 0).Store(&address); err != nil {
		return nil, fmt.Errorf("resolve accessibility bus address: %w", err)
	}

	conn, err := dbus.Connect(address)
	if err != nil {
		return nil, fmt.Errorf("connect accessibility bus: %w", err)
	}

	t.conn = conn
	return conn, nil
}

func (t *AtspiTracker) dropConnection(conn *dbus.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == conn {
		_ = t.conn.Close()
		t.conn = nil
	}
}

// accessibleRef is the (service, path) pair AT-SPI uses to reference objects.
type accessibleRef struct {
	Service string
	Path    dbus.ObjectPath
}

// findFocusedAccessible asks the registry root Collection for objects in the
// FOCUSED state.
func findFocusedAccessible(ctx context.Context, conn *dbus.Conn) (*accessibleRef, error) {
	rule := matchRule{
		States:         []int32{int32(stateFocusedBit), 0},
		StateMatch:     matchAll,
		Attributes:     map[string]string{},
		AttributeMatch: matchAll,
		Roles:          []int32{},
		RoleMatch:      matchAll,
		Interfaces:     []string{},
		InterfaceMatch: matchAll,
	}

	var matches []accessibleRef
	obj := conn.Object(atspiService, dbus.ObjectPath(atspiRootPath))
	err := obj.CallWithContext(ctx, collectionIfce+".GetMatches", 0, rule, uint32(0), int32(1), true).
		Store(&matches)
	if err != nil {
		return nil, fmt.Errorf("query focused accessible: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// accessibleInterfaces lists the AT-SPI interfaces the object implements.
func accessibleInterfaces(ctx context.Context, conn *dbus.Conn, ref accessibleRef) ([]string, error) {
	var interfaces []string
	obj := conn.Object(ref.Service, ref.Path)
	err := obj.CallWithContext(ctx, accessibleIfce+".GetInterfaces", 0).Store(&interfaces)
	if err != nil {
		return nil, fmt.Errorf("read accessible interfaces: %w", err)
	}
	return interfaces, nil
}

// accessibleApplicationName walks to the owning application and reads its name.
func accessibleApplicationName(ctx context.Context, conn *dbus.Conn, ref accessibleRef) (string, error) {
	var app accessibleRef
	obj := conn.Object(ref.Service, ref.Path)
	if err := obj.CallWithContext(ctx, accessibleIfce+".GetApplication", 0).Store(&app); err != nil {
		return "", fmt.Errorf("resolve owning application: %w", err)
	}

	appObj := conn.Object(app.Service, app.Path)
	variant, err := appObj.GetProperty(accessibleIfce + ".Name")
	if err != nil {
		return "", fmt.Errorf("read application name: %w", err)
	}

	name, ok := variant.Value().(string)
	if !ok {
		return "", fmt.Errorf("application name has unexpected type %T", variant.Value())
	}
	return strings.TrimSpace(name), nil
}

func hasEditableInterface(interfaces []string) bool {
	for _, iface := range interfaces {
		if iface == editableIfce {
			return true
		}
	}
	return false
}

// appIDFromWindow prefers the window class over the initial class.
func appIDFromWindow(window hypr.ActiveWindow) string {
	if window.Class != "" {
		return strings.ToLower(window.Class)
	}
	return strings.ToLower(window.InitialClass)
}
