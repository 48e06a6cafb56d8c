package ai

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingCredential struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (c *countingCredential) Credential(ctx context.Context) (string, error) {
	c.calls.Add(1)
	time.Sleep(10 * time.Millisecond)
	if c.fail.Load() {
		return "", errors.New("vault down")
	}
	return "secret", nil
}

func TestCachedCredentialSingleFlight(t *testing.T) {
	src := &countingCredential{}
	cred := NewCachedCredential(src)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cred.Credential(context.Background())
			require.NoError(t, err)
			require.Equal(t, "secret", v)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), src.calls.Load())

	_, err := cred.Credential(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), src.calls.Load())
}

func TestCachedCredentialDoesNotCacheFailure(t *testing.T) {
	src := &countingCredential{}
	src.fail.Store(true)
	cred := NewCachedCredential(src)
	_, err := cred.Credential(context.Background())
	require.Error(t, err)

	src.fail.Store(false)
	v, err := cred.Credential(context.Background())
	require.NoError(t, err)
	require.Equal(t, "secret", v)
	require.Equal(t, int32(2), src.calls.Load())
}

func TestCredentialSources(t *testing.T) {
	_, err := StaticCredential("").Credential(context.Background())
	require.ErrorIs(t, err, ErrNoCredential)

	t.Setenv("RELNOTE_TEST_KEY", " from-env ")
	v, err := EnvCredential("RELNOTE_TEST_KEY").Credential(context.Background())
	require.NoError(t, err)
	require.Equal(t, "from-env", v)
	_, err = EnvCredential("RELNOTE_TEST_MISSING").Credential(context.Background())
	require.ErrorIs(t, err, ErrNoCredential)

	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))
	v, err = FileCredential(path).Credential(context.Background())
	require.NoError(t, err)
	require.Equal(t, "from-file", v)

	require.Nil(t, credentialConfig{}.provider())
	require.NotNil(t, credentialConfig{APIKeyEnv: "X"}.provider())
}
