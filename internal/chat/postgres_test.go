package chat_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stargaze/chat-gateway/internal/chat"
	"github.com/stargaze/chat-gateway/internal/storage/storagetest"
)

func TestPostgresStore_AppendAndRecent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := chat.NewPostgresStore(storagetest.Open(t))

	// Given an empty log
	msgs, err := store.Recent(ctx, 50)
	req.NoError(err)
	req.Empty(msgs)

	// When three messages are appended
	for i := 1; i <= 3; i++ {
		msg, err := store.Append(ctx, "alice", fmt.Sprintf("msg-%d", i))
		req.NoError(err)
		req.Equal(int64(i), msg.ID)
		req.False(msg.CreatedAt.IsZero())
	}

	// Then the two newest come back oldest first
	msgs, err = store.Recent(ctx, 2)
	req.NoError(err)
	req.Len(msgs, 2)
	req.Equal("msg-2", msgs[0].Text)
	req.Equal("msg-3", msgs[1].Text)
	req.Less(msgs[0].ID, msgs[1].ID)
}

func TestPostgresStore_RejectsEmptyFields(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := chat.NewPostgresStore(storagetest.Open(t))

	_, err := store.Append(ctx, "", "hi")
	req.ErrorIs(err, chat.ErrEmptyUsername)

	msgs, err := store.Recent(ctx, 50)
	req.NoError(err)
	req.Empty(msgs)
}

func TestPostgresStore_FailedWriteLeavesNoRow(t *testing.T) {
	req := require.New(t)
	store := chat.NewPostgresStore(storagetest.Open(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Append(ctx, "alice", "lost")
	req.Error(err)

	msgs, err := store.Recent(context.Background(), 50)
	req.NoError(err)
	req.Empty(msgs)
}

func TestPostgresStore_ConcurrentAppendsGetUniqueIDs(t *testing.T) {
	req := require.New(t)
	store := chat.NewPostgresStore(storagetest.Open(t))

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]struct{})
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for m := 0; m < 10; m++ {
				msg, err := store.Append(context.Background(), fmt.Sprintf("user-%d", g), "x")
				if err != nil {
					t.Errorf("append: %v", err)
					return
				}
				mu.Lock()
				ids[msg.ID] = struct{}{}
				mu.Unlock()
			}
		}(g)
	}
	wg.Wait()
	req.Len(ids, 80)
}

func TestPostgresStore_RejectsNULBeforeQuerying(t *testing.T) {
	// No database: validation must fail before any query runs.
	store := chat.NewPostgresStore(nil)

	_, err := store.Append(context.Background(), "alice", "bad\x00text")
	require.ErrorIs(t, err, chat.ErrNULByte)
}
