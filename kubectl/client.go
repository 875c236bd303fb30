package kubectl

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/version"
)

const defaultNamespace = "default"

// Client issues the kubectl invocations needed by an export, one at a time.
type Client struct {
	runner Runner
}

func NewClient(runner Runner) *Client {
	return &Client{runner: runner}
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	out, err := c.runner.Run(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ClientVersion returns the kubectl client version, failing when it is older than minimum.
func (c *Client) ClientVersion(ctx context.Context, minimum string) (*version.Version, error) {
	out, err := c.run(ctx, "version", "--client", "-o=json")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, errors.Wrap(ErrNoClientVersion, "kubectl version printed nothing")
	}
	return CheckClientVersion(out, minimum)
}

// Namespaces lists every namespace of the cluster.
func (c *Client) Namespaces(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "get", "-o=name", "namespaces")
	if err != nil {
		return nil, err
	}
	var namespaces []string
	for _, name := range strings.Fields(out) {
		name = strings.TrimPrefix(name, "namespaces/")
		name = strings.TrimPrefix(name, "namespace/")
		namespaces = append(namespaces, name)
	}
	return namespaces, nil
}

// CurrentNamespace returns the namespace of the current context.
func (c *Client) CurrentNamespace(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "config", "view", "--minify", "-o", "jsonpath={..namespace}")
	if err != nil {
		return "", err
	}
	if out == "" {
		return defaultNamespace, nil
	}
	return out, nil
}

// APIResourcesTable returns the raw `kubectl api-resources -o wide` table for one scope.
func (c *Client) APIResourcesTable(ctx context.Context, namespaced bool) (string, error) {
	return c.run(ctx, "api-resources", "-o", "wide", "--namespaced="+strconv.FormatBool(namespaced))
}

// APIResources returns the API resources of one scope.
func (c *Client) APIResources(ctx context.Context, namespaced bool) ([]metav1.APIResource, error) {
	table, err := c.APIResourcesTable(ctx, namespaced)
	if err != nil {
		return nil, err
	}
	return ParseAPIResources(table)
}

// Names lists "<kind>.<group>/<name>" for every live object of resource. An empty namespace means a
// cluster-level listing.
func (c *Client) Names(ctx context.Context, resource, namespace string) ([]string, error) {
	args := []string{"get", "-o=name", "--ignore-not-found"}
	if namespace != "" {
		args = append(args, "-n", namespace)
	}
	out, err := c.run(ctx, append(args, resource)...)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// Get returns the JSON representation of one object, e.g. "deployment.apps/web".
func (c *Client) Get(ctx context.Context, name, namespace string) ([]byte, error) {
	args := []string{"get", "-o=json"}
	if namespace != "" {
		args = append(args, "-n", namespace)
	}
	out, err := c.runner.Run(ctx, append(args, name)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}
