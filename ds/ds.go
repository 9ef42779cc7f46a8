// Copyright 2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ds

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brutella/dnssd"
	"github.com/gliderlabs/ssh"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

var v = func(string, ...interface{}) {}

const (
	// DefaultService is the DNS-SD service type of rexd.
	DefaultService = "_rex._tcp"
	// DefaultDomain is the DNS-SD domain.
	DefaultDomain = "local"
	timeFormat    = "15:04:05.000"
	dsUpdate      = 60 * time.Second // server meta-data refresh
)

// Verbose sets the debug print function for the package.
func Verbose(f func(string, ...interface{})) {
	v = f
}

// ParseKv parses a DNS-SD key value string, e.g. a=1,b into a map. Keys
// without a value are set to "true".
func ParseKv(arg string) map[string]string {
	txt := make(map[string]string)
	if len(arg) == 0 {
		return txt
	}
	for _, pair := range strings.Split(arg, ",") {
		z := strings.SplitN(pair, "=", 2)
		if len(z) > 1 {
			txt[z[0]] = z[1]
		} else {
			txt[z[0]] = "true"
		}
	}
	return txt
}

// DefaultInstance returns the host name with a -rexd suffix.
func DefaultInstance() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "rexd"
	}
	return hostname + "-rexd"
}

// DefaultTxt fills in arch, os and cores unless they are set.
func DefaultTxt(txt map[string]string) {
	if len(txt["arch"]) == 0 {
		txt["arch"] = runtime.GOARCH
	}
	if len(txt["os"]) == 0 {
		txt["os"] = runtime.GOOS
	}
	if len(txt["cores"]) == 0 {
		txt["cores"] = strconv.Itoa(runtime.NumCPU())
	}
}

// UpdateSysInfo sets the memory, load and tenant entries of txt.
// Entries the system can not provide are left alone.
func UpdateSysInfo(txt map[string]string, tenants int) {
	if m, err := mem.VirtualMemory(); err == nil {
		txt["mem_avail"] = strconv.FormatUint(m.Available, 10)
		txt["mem_total"] = strconv.FormatUint(m.Total, 10)
	} else {
		v("VirtualMemory: %v", err)
	}
	if l, err := load.Avg(); err == nil {
		txt["load1"] = strconv.FormatFloat(l.Load1, 'f', 2, 64)
		txt["load5"] = strconv.FormatFloat(l.Load5, 'f', 2, 64)
		txt["load15"] = strconv.FormatFloat(l.Load15, 'f', 2, 64)
		txt["load_ratio"] = fmt.Sprintf("%.6f", l.Load5/float64(runtime.NumCPU()))
	} else {
		v("load.Avg: %v", err)
	}
	txt["tenants"] = strconv.Itoa(tenants)
	v("UpdateSysInfo %q", txt)
}

// Config names the advertised service.
type Config struct {
	Instance  string
	Domain    string
	Service   string
	Interface string
	Port      int
	Txt       map[string]string
}

// Advertiser is a running DNS-SD responder for one rexd.
type Advertiser struct {
	cancel  context.CancelFunc
	tenChan chan int

	mu      sync.Mutex
	tenants int
	txt     map[string]string
}

// Register starts advertising. It returns once the responder is set
// up; the announcement itself happens in the background.
func Register(c Config) (*Advertiser, error) {
	v("starting dns-sd server")
	if len(c.Instance) == 0 {
		c.Instance = DefaultInstance()
	}
	if len(c.Service) == 0 {
		c.Service = DefaultService
	}
	if len(c.Domain) == 0 {
		c.Domain = DefaultDomain
	}
	if c.Txt == nil {
		c.Txt = map[string]string{}
	}
	v("Advertising: %s.%s.%s.", strings.Trim(c.Instance, "."), strings.Trim(c.Service, "."), strings.Trim(c.Domain, "."))

	resp, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("dnssd newreponder fail: %w", err)
	}

	ifaces := []string{}
	if len(c.Interface) > 0 {
		ifaces = append(ifaces, c.Interface)
	}

	DefaultTxt(c.Txt)
	UpdateSysInfo(c.Txt, 0)

	srv, err := dnssd.NewService(dnssd.Config{
		Name:   c.Instance,
		Type:   c.Service,
		Domain: c.Domain,
		Port:   c.Port,
		Ifaces: ifaces,
		Text:   c.Txt,
	})
	if err != nil {
		return nil, fmt.Errorf("rexd: advertise: New service fail: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Advertiser{cancel: cancel, tenChan: make(chan int), txt: c.Txt}

	go func() {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return
		}
		handle, err := resp.Add(srv)
		if err != nil {
			v("dnssd add: %v", err)
			return
		}
		v("%s	Got a reply for service %s: Name now registered and active", time.Now().Format(timeFormat), handle.Service().ServiceInstanceName())
		t := time.NewTicker(dsUpdate)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case delta := <-a.tenChan:
				a.update(delta)
			case <-t.C:
				a.update(0)
			}
			handle.UpdateText(a.Txt(), resp)
		}
	}()

	go func() {
		if err := resp.Respond(ctx); err != nil && ctx.Err() == nil {
			v("dns-sd responder: %v", err)
			return
		}
		v("rex dns-sd responder exited")
	}()

	return a, nil
}

func (a *Advertiser) update(delta int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tenants += delta
	UpdateSysInfo(a.txt, a.tenants)
}

// Txt returns a copy of the current TXT record.
func (a *Advertiser) Txt() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	t := make(map[string]string, len(a.txt))
	for k, val := range a.txt {
		t[k] = val
	}
	return t
}

// Tenants returns the number of sessions counted by Tenant.
func (a *Advertiser) Tenants() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tenants
}

// Tenant updates the tenant count by delta. If the announcement is not
// running yet the count is updated directly.
func (a *Advertiser) Tenant(delta int) {
	v("tenant delta %d", delta)
	select {
	case a.tenChan <- delta:
	default:
		a.update(delta)
	}
}

// Wrap returns h, counting the sessions it runs as tenants.
func (a *Advertiser) Wrap(h ssh.Handler) ssh.Handler {
	return func(s ssh.Session) {
		a.Tenant(1)
		defer a.Tenant(-1)
		h(s)
	}
}

// Unregister stops advertising.
func (a *Advertiser) Unregister() {
	v("stopping dns-sd server")
	a.cancel()
}
