package postgres

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgservicefile"

	"github.com/leapstack-labs/atlas/pkg/core"
)

// DefaultSection is the config file section read when Source.Section is empty.
const DefaultSection = "atlasdb"

// requiredKeys must all be present in a config file section, in this order.
var requiredKeys = []string{"host", "port", "dbname", "user", "password"}

// Source says where connection parameters come from. Exactly one of
// ConnInfo, Service and ConfigFile must be set.
type Source struct {
	// ConnInfo is a libpq keyword/value string or a postgres:// URL.
	ConnInfo string
	// Service names an entry in pg_service.conf.
	Service string
	// ConfigFile is an INI file with a section holding host, port, dbname,
	// user and password.
	ConfigFile string
	// Section selects the config file section. Defaults to DefaultSection.
	Section string
	// Options are extra connection parameters such as application_name,
	// connect_timeout or sslmode.
	Options map[string]string
}

// ConnString resolves the source into a connection string pgx can parse.
func (s Source) ConnString() (string, error) {
	set := 0
	for _, v := range []string{s.ConnInfo, s.Service, s.ConfigFile} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return "", &core.ConfigError{Err: errors.New("exactly one of conninfo, service or config file must be provided")}
	}

	var base string
	switch {
	case s.ConnInfo != "":
		if isURL(s.ConnInfo) {
			return withURLOptions(s.ConnInfo, s.Options)
		}
		base = s.ConnInfo
	case s.Service != "":
		base = "service=" + quoteValue(s.Service)
	default:
		settings, err := readConfigSection(s.ConfigFile, s.section())
		if err != nil {
			return "", err
		}
		base = keywordString(settings, requiredKeys)
	}

	if opts := keywordString(s.Options, sortedKeys(s.Options)); opts != "" {
		base += " " + opts
	}
	return base, nil
}

func (s Source) section() string {
	if s.Section == "" {
		return DefaultSection
	}
	return s.Section
}

// readConfigSection returns the required settings of one section.
func readConfigSection(path, section string) (map[string]string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from trusted configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &core.ConfigError{Path: path, Err: fmt.Errorf("%w: config file does not exist", core.ErrNotFound)}
		}
		return nil, &core.ConfigError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	sf, err := pgservicefile.ParseServicefile(f)
	if err != nil {
		return nil, &core.ConfigError{Path: path, Err: err}
	}
	svc, err := sf.GetService(section)
	if err != nil {
		return nil, &core.ConfigError{Path: path, Section: section, Err: errors.New("section not found")}
	}

	var missing []string
	for _, k := range requiredKeys {
		if _, ok := svc.Settings[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, &core.ConfigError{Path: path, Section: section, Missing: missing}
	}
	return svc.Settings, nil
}

// keywordString renders keys of m as key='value' pairs.
func keywordString(m map[string]string, keys []string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteValue(m[k]))
	}
	return strings.Join(parts, " ")
}

// quoteValue quotes a conninfo value: single quotes around it, backslash and
// single quote escaped with a backslash.
func quoteValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}

func withURLOptions(raw string, opts map[string]string) (string, error) {
	if len(opts) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &core.ConfigError{Err: fmt.Errorf("invalid connection URL: %w", err)}
	}
	q := u.Query()
	for _, k := range sortedKeys(opts) {
		q.Set(k, opts[k])
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
