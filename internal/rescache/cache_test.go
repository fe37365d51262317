// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package rescache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	k1 := Key("billing", []string{"dev", "east"}, "main")
	k2 := Key("billing", []string{"dev"}, "east,main")
	assert.NotEqual(t, k1, k2, "profile list and label must not collide")
}

func TestGetOrCompute_CachesValue(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()
	ctx := context.Background()

	var calls atomic.Int64
	compute := func(context.Context) (string, error) {
		calls.Add(1)
		return "value", nil
	}

	v, err := c.GetOrCompute(ctx, Key("app", nil, ""), compute)
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	v, err = c.GetOrCompute(ctx, Key("app", nil, ""), compute)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.EqualValues(t, 1, calls.Load())
}

func TestGetOrCompute_SingleComputationPerKey(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Stop()
	ctx := context.Background()

	var calls atomic.Int64
	gate := make(chan struct{})
	compute := func(context.Context) (int, error) {
		calls.Add(1)
		<-gate
		return 42, nil
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make([]int, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(ctx, Key("app", []string{"dev"}, ""), compute)
		}(i)
	}

	// Give every worker a chance to join the in-flight computation.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load(), "concurrent callers must share one computation")
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 42, results[i])
	}
}

func TestGetOrCompute_ErrorsAreNotCached(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()
	ctx := context.Background()

	boom := errors.New("store down")
	var calls atomic.Int64

	_, err := c.GetOrCompute(ctx, Key("app", nil, ""), func(context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := c.GetOrCompute(ctx, Key("app", nil, ""), func(context.Context) (string, error) {
		calls.Add(1)
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGetOrCompute_TTLExpiry(t *testing.T) {
	c := New[string](50 * time.Millisecond)
	defer c.Stop()
	ctx := context.Background()

	var calls atomic.Int64
	compute := func(context.Context) (string, error) {
		calls.Add(1)
		return "v", nil
	}

	_, err := c.GetOrCompute(ctx, Key("app", nil, ""), compute)
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)

	_, err = c.GetOrCompute(ctx, Key("app", nil, ""), compute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGetOrCompute_SurvivesCallerCancellation(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := c.GetOrCompute(ctx, Key("app", nil, ""), func(ctx context.Context) (string, error) {
		// The compute context must not carry the caller's cancellation.
		require.NoError(t, ctx.Err())
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestInvalidate_OnlyDropsMatchingApplication(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()
	ctx := context.Background()

	var aCalls, bCalls atomic.Int64
	_, err := c.GetOrCompute(ctx, Key("app-a", nil, ""), func(context.Context) (string, error) {
		aCalls.Add(1)
		return "a", nil
	})
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, Key("app-b", nil, ""), func(context.Context) (string, error) {
		bCalls.Add(1)
		return "b", nil
	})
	require.NoError(t, err)

	c.Invalidate("app-a")

	_, err = c.GetOrCompute(ctx, Key("app-a", nil, ""), func(context.Context) (string, error) {
		aCalls.Add(1)
		return "a", nil
	})
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, Key("app-b", nil, ""), func(context.Context) (string, error) {
		bCalls.Add(1)
		return "b", nil
	})
	require.NoError(t, err)

	assert.EqualValues(t, 2, aCalls.Load())
	assert.EqualValues(t, 1, bCalls.Load())
}

func TestInvalidate_WildcardDropsEverything(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()
	ctx := context.Background()

	_, err := c.GetOrCompute(ctx, Key("app-a", nil, ""), func(context.Context) (string, error) {
		return "a", nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	c.Invalidate(Wildcard)
	assert.Equal(t, 0, c.Len())
}

func TestInvalidateAll_InFlightComputationNotStored(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()
	ctx := context.Background()

	started := make(chan struct{})
	gate := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, err := c.GetOrCompute(ctx, Key("app", nil, ""), func(context.Context) (string, error) {
			close(started)
			<-gate
			return "stale", nil
		})
		assert.NoError(t, err)
	}()

	<-started
	c.InvalidateAll()
	close(gate)
	<-done

	// The computation began before the invalidation; its result must not
	// have been kept.
	assert.Equal(t, 0, c.Len())
}
