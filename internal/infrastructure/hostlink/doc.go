// Package hostlink implements link.Radio for a host whose wireless
// interface is managed by NetworkManager.
//
// Association, scans and disconnects go through nmcli. Link state comes
// from the interface operstate in sysfs and signal strength from
// /proc/net/wireless, so the per-tick calls (Connected, RSSI) never run a
// command. Association and scanning run in the background; a failed
// association is reported through the link-loss callback.
//
// Usage:
//
//	radio, err := hostlink.New(hostlink.Options{Interface: "wlan0"})
//	if err != nil {
//	    return err
//	}
//	go radio.Watch(ctx)
package hostlink
