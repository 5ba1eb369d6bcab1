package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuelink/cuelink-go/pkg/discovery"
	"github.com/cuelink/cuelink-go/pkg/orchestrator"
	"github.com/cuelink/cuelink-go/pkg/persistence"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printStatus(w io.Writer, st orchestrator.Status) {
	fmt.Fprintf(w, "State:      %s\n", st.State)
	if st.Host != "" {
		target := fmt.Sprintf("%s:%d", st.Host, st.Port)
		if st.Name != "" {
			target += " (" + st.Name + ")"
		}
		fmt.Fprintf(w, "Host:       %s\n", target)
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "Last error: %s [%s]\n", st.LastError, st.ErrorKind)
	}

	discovering := "off"
	switch {
	case !st.DiscoveryAvailable:
		discovering = "unavailable"
	case st.IsDiscovering:
		discovering = fmt.Sprintf("on (%d hosts)", len(st.DiscoveredInstances))
	}
	fmt.Fprintf(w, "Discovery:  %s\n", discovering)
	if st.DiscoveryError != "" {
		fmt.Fprintf(w, "            %s\n", st.DiscoveryError)
	}
	fmt.Fprintf(w, "History:    %d entries\n", len(st.History))
	fmt.Fprintf(w, "Auto:       enabled=%t attempted=%t\n", st.Settings.AutoReconnectEnabled, st.AutoReconnectAttempted)
}

func printHistory(w io.Writer, entries []persistence.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No connection history.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLAST USED\tCOUNT\tCAPABILITIES")
	for _, h := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			h.ID, dash(h.Name), h.LastUsedAt.Local().Format(time.DateTime), h.SuccessCount, formatPorts(h.CapabilityPorts))
	}
	tw.Flush()
}

func printHosts(w io.Writer, hosts []discovery.DiscoveredHost) {
	if len(hosts) == 0 {
		fmt.Fprintln(w, "No hosts found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IP\tNAME\tPORT\tCAPABILITIES")
	for _, h := range hosts {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", h.IP, dash(h.Name), h.Port, dash(strings.Join(h.Capabilities, ",")))
	}
	tw.Flush()
}

func printSettings(w io.Writer, s persistence.Settings) {
	fmt.Fprintf(w, "theme:          %s\n", s.Theme)
	fmt.Fprintf(w, "notifications:  %t\n", s.NotificationsEnabled)
	fmt.Fprintf(w, "auto-reconnect: %t\n", s.AutoReconnectEnabled)
	fmt.Fprintf(w, "timeout:        %ds\n", s.ConnectionTimeoutSeconds)
}

func formatPorts(ports map[string]int) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ports))
	for name, port := range ports {
		parts = append(parts, fmt.Sprintf("%s=%d", name, port))
	}
	slices.Sort(parts)
	return strings.Join(parts, ",")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// parseSetting turns one key/value pair into a settings patch.
func parseSetting(key, value string) (persistence.SettingsPatch, error) {
	var patch persistence.SettingsPatch
	key = strings.ToLower(key)
	switch key {
	case "theme":
		v := strings.ToLower(value)
		switch v {
		case persistence.ThemeDark, persistence.ThemeLight, persistence.ThemeSystem:
		default:
			return patch, fmt.Errorf("invalid theme: %s (must be dark, light, or system)", value)
		}
		patch.Theme = &v
	case "notifications", "auto-reconnect":
		b, err := parseBool(value)
		if err != nil {
			return patch, err
		}
		if key == "notifications" {
			patch.NotificationsEnabled = &b
		} else {
			patch.AutoReconnectEnabled = &b
		}
	case "timeout":
		n, err := strconv.Atoi(strings.TrimSuffix(value, "s"))
		if err != nil {
			return patch, fmt.Errorf("invalid timeout: %s", value)
		}
		if n < persistence.MinConnectionTimeoutSeconds || n > persistence.MaxConnectionTimeoutSeconds {
			return patch, fmt.Errorf("timeout must be between %d and %d seconds",
				persistence.MinConnectionTimeoutSeconds, persistence.MaxConnectionTimeoutSeconds)
		}
		patch.ConnectionTimeoutSeconds = &n
	default:
		return patch, fmt.Errorf("unknown setting: %s (theme, notifications, auto-reconnect, timeout)", key)
	}
	return patch, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid value: %s (use on or off)", s)
	}
}
