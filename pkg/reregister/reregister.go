// pkg/reregister/reregister.go - rewrites the tenant identity stored in the
// agent's XML configuration files without reinstalling it.

package reregister

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/beevik/etree"
	"github.com/hashicorp/go-multierror"

	"github.com/windowsadmins/agentrepair/pkg/config"
	"github.com/windowsadmins/agentrepair/pkg/logging"
)

// Setting sets the text of the element found by Selector (an etree path,
// for example "ApplianceConfig/CustomerID").
type Setting struct {
	Selector string
	Value    string
}

// Edit is the list of settings applied to one file.
type Edit struct {
	Path     string
	Settings []Setting
	// Secret settings are logged with their value masked.
	Secret map[string]bool
}

// AgentSettings returns the identity edits for the agent config directory.
func AgentSettings(cfg *config.Configuration) []Edit {
	return []Edit{
		{
			Path: filepath.Join(cfg.AgentConfigDir, "ApplianceConfig.xml"),
			Settings: []Setting{
				{Selector: "ApplianceConfig/CustomerID", Value: cfg.CustomerID},
				{Selector: "ApplianceConfig/CustomerSpecific", Value: "1"},
				{Selector: "ApplianceConfig/RegistrationToken", Value: cfg.RegistrationToken},
			},
			Secret: map[string]bool{"ApplianceConfig/RegistrationToken": true},
		},
		{
			Path: filepath.Join(cfg.AgentConfigDir, "ServerConfig.xml"),
			Settings: []Setting{
				{Selector: "ServerConfig/ServerIP", Value: cfg.Server},
			},
		},
	}
}

type pending struct {
	edit Edit
	doc  *etree.Document
}

// Apply applies settings to the single file at path.
func Apply(path string, settings []Setting) error {
	return ApplyAll([]Edit{{Path: path, Settings: settings}})
}

// ApplyAll loads every file and applies every setting in memory first. If
// any file fails to load or any selector matches nothing, no file is
// written. Each written file is replaced atomically and its previous content
// is kept as <file>.bak. If a later write fails, the files already written
// are restored from their backups.
func ApplyAll(edits []Edit) error {
	var (
		staged []pending
		result *multierror.Error
	)
	for _, e := range edits {
		doc := etree.NewDocument()
		if err := doc.ReadFromFile(e.Path); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to read %s: %w", e.Path, err))
			continue
		}
		for _, s := range e.Settings {
			el := doc.FindElement(s.Selector)
			if el == nil {
				result = multierror.Append(result, fmt.Errorf("%s: no element matches %q", e.Path, s.Selector))
				continue
			}
			el.SetText(s.Value)
		}
		staged = append(staged, pending{edit: e, doc: doc})
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("configuration not changed: %w", err)
	}

	for i, p := range staged {
		if err := writeDocument(p.edit.Path, p.doc); err != nil {
			for _, done := range staged[:i] {
				if rerr := restore(done.edit.Path); rerr != nil {
					err = multierror.Append(err, rerr)
				}
			}
			return err
		}
		for _, s := range p.edit.Settings {
			value := s.Value
			if p.edit.Secret[s.Selector] {
				value = "********"
			}
			logging.Info("Updated agent setting", "file", p.edit.Path, "setting", s.Selector, "value", value)
		}
	}
	return nil
}

// writeDocument is replaced in tests to simulate a failing disk.
var writeDocument = write

func write(path string, doc *etree.Document) error {
	if err := backup(path); err != nil {
		return err
	}
	return replace(path, func(w io.Writer) error {
		_, err := doc.WriteTo(w)
		return err
	})
}

// restore puts <path>.bak back in place.
func restore(path string) error {
	data, err := os.ReadFile(path + ".bak")
	if err != nil {
		return fmt.Errorf("failed to read backup of %s: %w", path, err)
	}
	if err := replace(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return err
	}
	logging.Warn("Restored agent configuration from backup", "file", path)
	return nil
}

// replace writes a temp file next to path and renames it over path.
func replace(path string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	err = fill(tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func backup(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s for backup: %w", path, err)
	}
	defer in.Close()
	out, err := os.Create(path + ".bak")
	if err != nil {
		return fmt.Errorf("failed to create backup of %s: %w", path, err)
	}
	_, err = io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to back up %s: %w", path, err)
	}
	return nil
}

// ServiceController stops and starts services, waiting for each transition.
type ServiceController interface {
	Stop(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
}

// Run stops services, applies edits and starts services again. Services
// are restarted even when the edit fails so the agent is not left down.
func Run(ctx context.Context, sc ServiceController, services []string, edits []Edit) error {
	for i, name := range services {
		if err := sc.Stop(ctx, name); err != nil {
			result := multierror.Append(nil, fmt.Errorf("failed to stop %q before editing configuration: %w", name, err))
			for _, stopped := range services[:i] {
				if serr := sc.Start(ctx, stopped); serr != nil {
					result = multierror.Append(result, serr)
				}
			}
			return result.ErrorOrNil()
		}
	}

	var result *multierror.Error
	if err := ApplyAll(edits); err != nil {
		result = multierror.Append(result, err)
	}
	for _, name := range services {
		if err := sc.Start(ctx, name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
