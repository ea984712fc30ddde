package r2span

// Optional mDNS/DNS-SD advertisement of the admin control surface, built
// on the pure-Go github.com/brutella/dnssd package: no system daemon or
// C library dependency, so it works the same on every platform this
// module targets. Disabled unless AdvertiseControlSurface is explicitly
// called.

import (
	"context"
	"os"
	"strings"

	"github.com/brutella/dnssd"
)

const controlServiceType = "_r2span-ctl._tcp"

// AdvertiseControlSurface publishes the control surface's TCP port over
// DNS-SD so an admin client can discover it without a hardcoded address.
// name may be empty to use a hostname-derived default.
func AdvertiseControlSurface(ctx context.Context, name string, port int, log Logger) error {
	if log == nil {
		log = NopLogger()
	}
	if name == "" {
		name = defaultServiceName()
	}

	cfg := dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: controlServiceType,
		Port: port,
	}

	sv, err := dnssd.NewService(cfg)
	if err != nil {
		log.Errorf("dnssd: create service: %v", err)
		return err
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		log.Errorf("dnssd: create responder: %v", err)
		return err
	}

	if _, err := rp.Add(sv); err != nil {
		log.Errorf("dnssd: add service: %v", err)
		return err
	}

	log.Infof("dnssd: announcing %s on port %d as %q", controlServiceType, port, name)

	go func() {
		if err := rp.Respond(ctx); err != nil {
			log.Errorf("dnssd: responder: %v", err)
		}
	}()
	return nil
}

func defaultServiceName() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "r2span"
	}
	hostname, _, _ = strings.Cut(hostname, ".")
	return "r2span on " + hostname
}
