package indicator

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notifyService   = "org.freedesktop.Notifications"
	notifyPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyInterface = "org.freedesktop.Notifications"
)

// desktopNotify sends a freedesktop notification over the session bus.
// It returns the notification ID assigned by the server.
func desktopNotify(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int) (uint32, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return 0, fmt.Errorf("connect session bus: %w", err)
	}

	obj := conn.Object(notifyService, notifyPath)
	call := obj.CallWithContext(ctx, notifyInterface+".Notify", 0,
		appName,
		replaceID,
		"", // app icon
		summary,
		"", // body
		[]string{},
		map[string]dbus.Variant{},
		int32(timeoutMS),
	)
	if call.Err != nil {
		return 0, fmt.Errorf("desktop notify failed: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("desktop notify invalid response: %w", err)
	}
	return id, nil
}

// desktopDismiss requests explicit close by notification ID.
func desktopDismiss(ctx context.Context, id uint32) error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}

	obj := conn.Object(notifyService, notifyPath)
	call := obj.CallWithContext(ctx, notifyInterface+".CloseNotification", 0, id)
	if call.Err != nil {
		return fmt.Errorf("desktop dismiss failed: %w", call.Err)
	}
	return nil
}
