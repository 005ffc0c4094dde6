package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"wsruntime/internal/model"
	"wsruntime/internal/runtime"
)

func testRuntime() *runtime.Runtime {
	return &runtime.Runtime{
		Identity:       model.RuntimeIdentity{WorkspaceID: "ws1", EnvName: "default", OwnerID: "owner1"},
		Infrastructure: "docker",
		Machines: map[string]runtime.Machine{
			"dev": {
				Name:        "dev",
				Status:      "running",
				MemoryLimit: 512 << 20,
				Servers: map[string]runtime.Server{
					"ide":   {Name: "ide", Port: 3100, URL: "http://ide-dev-ws1.127.0.0.1.nip.io/"},
					"debug": {Name: "debug", Port: 5005, Internal: true, URL: "tcp://ws1-dev:5005"},
				},
			},
			"db": {Name: "db", Status: "exited"},
		},
	}
}

func TestNewPrinter(t *testing.T) {
	for _, format := range []string{"table", "json", "yaml"} {
		p, err := NewPrinter(format, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, OutputFormat(format), p.Format)
	}

	_, err := NewPrinter("xml", &bytes.Buffer{})
	assert.EqualError(t, err, "unsupported output format: xml")
}

func TestPrinter_RuntimeTable(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter("table", &buf)
	require.NoError(t, err)

	require.NoError(t, p.Runtime(testRuntime()))
	out := buf.String()
	for _, want := range []string{
		"MACHINE", "URL",
		"dev", "running", "512MiB",
		"ide", "3100", "http://ide-dev-ws1.127.0.0.1.nip.io/",
		"tcp://ws1-dev:5005 (internal)",
		"db", "exited",
		"ws1 on docker: 2 machines",
	} {
		assert.Contains(t, out, want)
	}
}

func TestRuntimeRows(t *testing.T) {
	rows := runtimeRows(testRuntime())
	assert.Equal(t, [][]string{
		{"db", "exited", "-", "-", "-", "-"},
		{"dev", "running", "512MiB", "debug", "5005", "tcp://ws1-dev:5005 (internal)"},
		{"", "", "", "ide", "3100", "http://ide-dev-ws1.127.0.0.1.nip.io/"},
	}, rows)
}

func TestPrinter_RuntimeJSON(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter("json", &buf)
	require.NoError(t, err)
	require.NoError(t, p.Runtime(testRuntime()))

	var decoded runtime.Runtime
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "ws1", decoded.Identity.WorkspaceID)
	assert.Equal(t, 3100, decoded.Machines["dev"].Servers["ide"].Port)
}

func TestPrinter_RuntimeYAML(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter("yaml", &buf)
	require.NoError(t, err)
	require.NoError(t, p.Runtime(testRuntime()))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "docker", decoded["infrastructure"])
	assert.Contains(t, buf.String(), "workspaceId: ws1")
}

func TestPrinter_Message(t *testing.T) {
	var buf bytes.Buffer
	(&Printer{Format: OutputFormatTable, Out: &buf}).Message("stopped %s", "ws1")
	(&Printer{Format: OutputFormatJSON, Out: &buf}).Message("hidden")
	assert.Equal(t, "stopped ws1\n", buf.String())
}
