package migrate

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeTx records which migrations ran.
type fakeTx struct {
	applied *[]string
}

type fakeDriver struct {
	version string
	applied []string
}

func (d *fakeDriver) Version(context.Context) (string, error) { return d.version, nil }

func (d *fakeDriver) WriteVersion(_ context.Context, _ fakeTx, version, replaced string) error {
	if d.version != replaced {
		return fmt.Errorf("expected to replace %q, datastore at %q", replaced, d.version)
	}
	d.version = version
	return nil
}

func (d *fakeDriver) Transact(ctx context.Context, f MigrationFunc[fakeTx]) error {
	return f(ctx, fakeTx{applied: &d.applied})
}

func (d *fakeDriver) Close(context.Context) error { return nil }

func chainOf(t *testing.T, links ...[2]string) *Manager[*fakeDriver, fakeTx] {
	t.Helper()
	m := NewManager[*fakeDriver, fakeTx]()
	for _, link := range links {
		version := link[0]
		require.NoError(t, m.Register(version, link[1], func(_ context.Context, tx fakeTx) error {
			*tx.applied = append(*tx.applied, version)
			return nil
		}))
	}
	return m
}

func TestRegisterRejectsDuplicatesAndHead(t *testing.T) {
	m := NewManager[*fakeDriver, fakeTx]()
	require.NoError(t, m.Register("0001", "", nil))
	require.Error(t, m.Register("0001", "", nil))
	require.Error(t, m.Register("head", "0001", nil))
	require.Error(t, m.Register("HEAD", "0001", nil))
}

func TestHeadRevision(t *testing.T) {
	tests := []struct {
		name    string
		links   [][2]string
		head    string
		wantErr bool
	}{
		{"empty", nil, "", true},
		{"single", [][2]string{{"0001", ""}}, "0001", false},
		{"chain", [][2]string{{"0001", ""}, {"0002", "0001"}, {"0003", "0002"}}, "0003", false},
		{"forked", [][2]string{{"0001", ""}, {"0002a", "0001"}, {"0002b", "0001"}}, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			head, err := chainOf(t, tc.links...).HeadRevision()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.head, head)
		})
	}
}

func TestPlan(t *testing.T) {
	m := chainOf(t, [2]string{"0001", ""}, [2]string{"0002", "0001"}, [2]string{"0003", "0002"})

	tests := []struct {
		from, through string
		want          []string
		wantErr       bool
	}{
		{"", "head", []string{"0001", "0002", "0003"}, false},
		{"", "0002", []string{"0001", "0002"}, false},
		{"0001", "0003", []string{"0002", "0003"}, false},
		{"0003", "0003", nil, false},
		{"", "0009", nil, true},
	}
	for _, tc := range tests {
		got, err := m.Plan(tc.from, tc.through)
		if tc.wantErr {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
}

func TestRunAppliesChainInOrder(t *testing.T) {
	m := chainOf(t, [2]string{"0001", ""}, [2]string{"0002", "0001"}, [2]string{"0003", "0002"})

	driver := &fakeDriver{}
	require.NoError(t, m.Run(context.Background(), driver, Head))
	require.Equal(t, []string{"0001", "0002", "0003"}, driver.applied)
	require.Equal(t, "0003", driver.version)

	// Running again from head is a no-op.
	require.NoError(t, m.Run(context.Background(), driver, Head))
	require.Equal(t, []string{"0001", "0002", "0003"}, driver.applied)
}

func TestRunPartialChain(t *testing.T) {
	m := chainOf(t, [2]string{"0001", ""}, [2]string{"0002", "0001"}, [2]string{"0003", "0002"})

	driver := &fakeDriver{version: "0001"}
	require.NoError(t, m.Run(context.Background(), driver, "0002"))
	require.Equal(t, []string{"0002"}, driver.applied)
	require.Equal(t, "0002", driver.version)
}

func TestIsHeadCompatible(t *testing.T) {
	m := chainOf(t, [2]string{"0001", ""}, [2]string{"0002", "0001"}, [2]string{"0003", "0002"})

	for revision, want := range map[string]bool{
		"0003": true,
		"0002": true,
		"0001": false,
		"":     false,
	} {
		ok, err := m.IsHeadCompatible(revision)
		require.NoError(t, err)
		require.Equal(t, want, ok, "revision %q", revision)
	}
}
