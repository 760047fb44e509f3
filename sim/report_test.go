package sim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LaureanoOlocco/concurrency-lab/core/petri"
)

func netAfterOneRejectedBooking(t *testing.T) *petri.Net {
	t.Helper()
	net, err := petri.NewNet(petri.Agency(), petri.ProfileFast, time.Now().UnixMilli())
	require.NoError(t, err)
	now := time.Now().UnixMilli()
	for _, tr := range []int{0, 1, 3, 4, 7, 8, 11} {
		require.NoError(t, net.TryFire(tr, net.IsEnabled(tr), now))
	}
	return net
}

func TestReportFormat(t *testing.T) {
	report := Report(netAfterOneRejectedBooking(t))
	lines := strings.Split(report, "\n")

	require.GreaterOrEqual(t, len(lines), 22)
	assert.Equal(t, "T0 T1 T3 T4 T7 T8 T11 ", lines[0])
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "-------------------------- Transiciones disparadas --------------------------", lines[2])
	assert.Equal(t, "Transicion 0 disparada: 1 veces.", lines[3])
	assert.Equal(t, "Transicion 2 disparada: 0 veces.", lines[5])
	assert.Equal(t, "Transicion 11 disparada: 1 veces.", lines[14])
	assert.Equal(t, "", lines[15])
	assert.Equal(t, "-------------------------- Invariantes completados --------------------------", lines[16])
	assert.Equal(t, "Invariante 1: [0 1 3 4 7 8 11] completado: 1 veces", lines[17])
	assert.Equal(t, "Invariante 2: [0 1 3 4 6 9 10 11] completado: 0 veces", lines[18])
	assert.Equal(t, "Invariante 3: [0 1 2 5 7 8 11] completado: 0 veces", lines[19])
	assert.Equal(t, "Invariante 4: [0 1 2 5 6 9 10 11] completado: 0 veces", lines[20])
	assert.Equal(t, "Total de invariantes completados: 1", lines[21])
}

func TestWriteReport(t *testing.T) {
	net := netAfterOneRejectedBooking(t)
	path := filepath.Join(t.TempDir(), "sim.log")
	require.NoError(t, WriteReport(path, net))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Report(net), string(data))
}

func TestWriteReportBadPath(t *testing.T) {
	net := netAfterOneRejectedBooking(t)
	err := WriteReport(filepath.Join(t.TempDir(), "missing", "sim.log"), net)
	assert.Error(t, err)
}
