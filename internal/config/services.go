package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/loykin/svcmon/internal/cooldown"
	"github.com/loykin/svcmon/internal/manager"
)

// LoadServicesINI reads the legacy service list: one section per service
// with processname, servicename and pidfile keys. A missing file yields no
// services. Keys are case-insensitive.
func LoadServicesINI(path string) (manager.Services, error) {
	out := manager.Services{}
	if path == "" {
		return out, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	f, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, path)
	if err != nil {
		return nil, fmt.Errorf("parse services file %s: %w", path, err)
	}
	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			continue
		}
		out[name] = manager.ServiceSpec{
			Section:     name,
			ProcessName: strings.TrimSpace(sec.Key("processname").String()),
			ServiceName: strings.TrimSpace(sec.Key("servicename").String()),
			PIDFile:     strings.TrimSpace(sec.Key("pidfile").String()),
		}
	}
	return out, nil
}

// LoadServices merges the INI services file with inline [[services]];
// inline entries replace INI sections of the same name.
func (c *Config) LoadServices() (manager.Services, error) {
	out, err := LoadServicesINI(c.ServicesFile)
	if err != nil {
		return nil, err
	}
	for _, s := range c.Services {
		out[s.Name] = manager.ServiceSpec{
			Section:     s.Name,
			ProcessName: strings.TrimSpace(s.ProcessName),
			ServiceName: strings.TrimSpace(s.ServiceName),
			PIDFile:     strings.TrimSpace(s.PIDFile),
		}
	}
	if err := c.checkNames(out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkNames rejects process names the configured cooldown format cannot hold.
func (c *Config) checkNames(s manager.Services) error {
	codec, err := cooldown.NewCodec(c.Cooldown.Format)
	if err != nil {
		return err
	}
	var errs []error
	for _, spec := range s.Sorted() {
		if spec.ProcessName == "" {
			// reported as invalid input by the sweep
			continue
		}
		if err := codec.ValidateName(spec.ProcessName); err != nil {
			errs = append(errs, fmt.Errorf("service %s: %w", spec.Section, err))
		}
	}
	return errors.Join(errs...)
}
