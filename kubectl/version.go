package kubectl

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/version"
	apimachineryversion "k8s.io/apimachinery/pkg/version"
	"sigs.k8s.io/yaml"
)

// MinimumClientVersion is the oldest kubectl the exporter accepts.
const MinimumClientVersion = "v1.11.0"

var (
	ErrNoClientVersion = errors.New("cannot fetch client version")
	ErrClientTooOld    = errors.New("kubectl client is too old")
)

var gitVersionPattern = regexp.MustCompile(`GitVersion:"([^"]+)"`)

// FirstLineWithPrefix returns the first line of text that starts with prefix.
func FirstLineWithPrefix(text, prefix string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, prefix) {
			return line, true
		}
	}
	return "", false
}

// ValueAfterColon returns the trimmed text after the first colon.
func ValueAfterColon(text string) (string, bool) {
	i := strings.IndexByte(text, ':')
	if i < 0 {
		return "", false
	}
	return strings.TrimSpace(text[i+1:]), true
}

// ParseClientVersion extracts the client version from `kubectl version --client` output.
// Both "Client Version: v1.28.2" and the legacy "Client Version: version.Info{...}" forms are accepted.
func ParseClientVersion(output string) (*version.Version, error) {
	line, ok := FirstLineWithPrefix(output, "Client Version")
	if !ok {
		return nil, errors.Wrapf(ErrNoClientVersion, "from %q", strings.TrimSpace(output))
	}
	value, ok := ValueAfterColon(line)
	if !ok || value == "" {
		return nil, errors.Wrapf(ErrNoClientVersion, "from %q", line)
	}
	if strings.HasPrefix(value, "version.Info") {
		match := gitVersionPattern.FindStringSubmatch(value)
		if match == nil {
			return nil, errors.Wrapf(ErrNoClientVersion, "from %q", line)
		}
		value = match[1]
	}
	v, err := version.ParseGeneric(value)
	if err != nil {
		return nil, errors.Wrapf(ErrNoClientVersion, "from %q: %v", line, err)
	}
	return v, nil
}

type versionOutput struct {
	ClientVersion *apimachineryversion.Info `json:"clientVersion,omitempty"`
}

// ParseClientVersionJSON extracts the client version from `kubectl version --client -o=json` output.
func ParseClientVersionJSON(output string) (*version.Version, error) {
	var out versionOutput
	if err := yaml.Unmarshal([]byte(output), &out); err != nil {
		return nil, errors.Wrapf(ErrNoClientVersion, "from %q: %v", strings.TrimSpace(output), err)
	}
	if out.ClientVersion == nil || out.ClientVersion.GitVersion == "" {
		return nil, errors.Wrapf(ErrNoClientVersion, "from %q", strings.TrimSpace(output))
	}
	v, err := version.ParseGeneric(out.ClientVersion.GitVersion)
	if err != nil {
		return nil, errors.Wrapf(ErrNoClientVersion, "from %q: %v", out.ClientVersion.GitVersion, err)
	}
	return v, nil
}

// CheckClientVersion fails when the version reported in output is older than minimum. Output may be
// the structured JSON document or the plain text form.
func CheckClientVersion(output, minimum string) (*version.Version, error) {
	parse := ParseClientVersion
	if strings.HasPrefix(strings.TrimSpace(output), "{") {
		parse = ParseClientVersionJSON
	}
	v, err := parse(output)
	if err != nil {
		return nil, err
	}
	floor := version.MustParseGeneric(minimum)
	if v.LessThan(floor) {
		return v, errors.Wrapf(ErrClientTooOld, "minimum client version is %s, found %s", floor, v)
	}
	return v, nil
}
