package bluetooth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"

	"btrpa/internal/scan"
	"btrpa/internal/util"
)

type PreflightOptions struct {
	// RestartBluetoothService restarts bluetooth.service once when the adapter is
	// missing and the process runs as root.
	RestartBluetoothService bool
}

// Preflight checks that BlueZ knows adapterID and that it is powered, powering
// it on when possible. A missing adapter is scan.ErrSourceUnavailable naming the
// adapters that do exist.
func Preflight(ctx context.Context, conn *dbus.Conn, adapterID string, opt PreflightOptions) error {
	adapterID = strings.TrimSpace(adapterID)
	objs, err := getManagedObjects(ctx, conn)
	if err != nil {
		return fmt.Errorf("%w: query bluez: %w", scan.ErrSourceUnavailable, err)
	}

	props := objs.adapterProps(adapterID)
	if props == nil && opt.RestartBluetoothService && util.IsRoot() {
		util.Linef("[PREFLIGHT]", util.ColorYellow, "adapter %s missing, restarting bluetooth service", adapterID)
		if err := util.RestartService(ctx, "bluetooth"); err != nil {
			log.Warn().Err(err).Msg("restart bluetooth service")
		}
		t := time.NewTimer(1500 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if objs, err = getManagedObjects(ctx, conn); err == nil {
			props = objs.adapterProps(adapterID)
		}
	}
	if props == nil {
		if util.HasSystemctl() && !util.ServiceIsActive(ctx, "bluetooth") {
			util.Line("[PREFLIGHT]", util.ColorYellow, "bluetooth service is not active")
		}
		return fmt.Errorf("%w: adapter %s not found (available: %s)",
			scan.ErrSourceUnavailable, adapterID, describeAdapters(objs.adapters()))
	}

	if p := getBoolPtr(props, "Powered"); p == nil || !*p {
		util.Linef("[PREFLIGHT]", util.ColorGray, "adapter %s powered off, powering on", adapterID)
		if err := setAdapterPowered(ctx, conn, adapterID); err != nil {
			return fmt.Errorf("%w: power on %s: %w", scan.ErrSourceUnavailable, adapterID, err)
		}
	}
	if addr, ok := getString(props, "Address"); ok {
		log.Info().Str("adapter", adapterID).Str("address", addr).Msg("adapter ready")
	}
	return nil
}

// describeAdapters annotates adapter ids with their bus when hciconfig knows it.
func describeAdapters(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	bus := map[string]string{}
	if infos, err := GetBluetoothInterfaces(); err == nil {
		for _, in := range infos {
			bus[in.ID] = in.BusInfo
		}
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if b := bus[id]; b != "" {
			parts = append(parts, id+" ("+b+")")
			continue
		}
		parts = append(parts, id)
	}
	return strings.Join(parts, ", ")
}
