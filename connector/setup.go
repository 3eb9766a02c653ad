package connector

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

const setConfigSQL = "select pg_catalog.set_config($1,$2,false)"

// Setup is the work every new connection does before it is handed out.
type Setup struct {
	Statements      []Statement
	Settings        []Setting
	ApplicationName string
}

// Batch queues the setup statements, then the settings, then the
// application name tag.
func (s Setup) Batch() *pgx.Batch {
	b := &pgx.Batch{}
	for _, st := range s.Statements {
		b.Queue(st.Statement, st.Params...)
	}
	for _, set := range s.Settings {
		b.Queue(setConfigSQL, set.Name, set.Value)
	}
	if s.ApplicationName != "" {
		b.Queue(setConfigSQL, "application_name", s.ApplicationName)
	}
	return b
}

// SettingsBatch queues one set_config per setting.
func SettingsBatch(settings []Setting) *pgx.Batch {
	return Setup{Settings: settings}.Batch()
}

// ApplicationTag expands {applicationName} and {instanceName} in place.
func ApplicationTag(place, applicationName, instanceName string) string {
	if place == "" {
		return ""
	}
	return strings.NewReplacer(
		"{applicationName}", applicationName,
		"{instanceName}", instanceName,
	).Replace(place)
}

// MergeContext overlays configured settings on the caller's: same named
// entries take the configured value and missing ones are appended. Without
// the config source the caller's settings are used unchanged.
func MergeContext(source string, configured, caller []Setting) []Setting {
	out := make([]Setting, len(caller))
	copy(out, caller)
	if source != ContextFromConfig {
		return out
	}
	for _, cfg := range configured {
		found := false
		for i := range out {
			if out[i].Name == cfg.Name {
				out[i].Value = cfg.Value
				found = true
			}
		}
		if !found {
			out = append(out, cfg)
		}
	}
	return out
}
