//go:build integration

package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/messagely/message-api/api"
	"github.com/messagely/message-api/internal/testutil"
)

var addr string

func TestMain(m *testing.M) {
	var (
		cleanup testutil.Cleanup
		err     error
	)
	addr, cleanup, err = testutil.StartRedis(nil)
	if err != nil {
		log.Fatalf("Could not start Redis: %v", err)
	}
	code := m.Run()
	if err := cleanup(); err != nil {
		log.Print(err)
	}
	os.Exit(code)
}

func testMessage(id string, sentAt time.Time) api.Message {
	return api.Message{
		ID:           id,
		FromUsername: "alice",
		ToUsername:   "bob",
		Body:         "hello",
		SentAt:       sentAt,
		FromUser:     &api.User{Username: "alice", FirstName: "Alice", LastName: "Liddell", Phone: "+15550001"},
		ToUser:       &api.User{Username: "bob", FirstName: "Bob", LastName: "Builder", Phone: "+15550002"},
	}
}

func TestRedis_GetMessage(t *testing.T) {
	sentAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	readAt := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	unread := testMessage("9cbf8127-299b-4a84-8920-cd35ea0c084c", sentAt)
	read := testMessage("4562fe69-42b3-46e5-b990-11581182f57c", sentAt)
	read.ReadAt = &readAt
	anonymous := testMessage("388d74ea-cc39-4566-860f-0df6068f3330", sentAt)
	anonymous.FromUser = nil
	anonymous.ToUser = nil

	tests := []struct {
		name    string
		insert  *api.Message
		id      string
		want    *api.Message
		wantErr error
	}{
		{
			name:    "Miss",
			id:      "9cbf8127-299b-4a84-8920-cd35ea0c084c",
			wantErr: api.ErrMessageNotFoundInCache,
		},
		{
			name:   "Unread",
			insert: &unread,
			id:     unread.ID,
			want:   &unread,
		},
		{
			name:   "Read",
			insert: &read,
			id:     read.ID,
			want:   &read,
		},
		{
			name:   "NoParticipants",
			insert: &anonymous,
			id:     anonymous.ID,
			want:   &anonymous,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			r := connect(t)
			if tt.insert != nil {
				if err := r.InsertMessage(ctx, *tt.insert); err != nil {
					t.Fatalf("Insert failed: %v", err)
				}
			}

			got, err := r.GetMessage(ctx, tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Got error %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(got, tt.want, equalTime()); diff != "" {
				t.Errorf("Diff (-got +want)\n%s", diff)
			}
		})
	}
}

func TestRedis_InsertMessage_expires(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	r := connect(t)
	msg := testMessage("9cbf8127-299b-4a84-8920-cd35ea0c084c", time.Now())
	if err := r.InsertMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	ttl, err := r.cli.TTL(ctx, messageKey(msg.ID)).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > DefaultTTL {
		t.Errorf("Got TTL %v, want within (0, %v]", ttl, DefaultTTL)
	}
}

func TestRedis_InsertMessage_keepsReadAt(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	r := connect(t)
	readAt := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	unread := testMessage("9cbf8127-299b-4a84-8920-cd35ea0c084c", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	read := unread
	read.ReadAt = &readAt

	// A lookup that loaded the row before it was marked read stores its copy
	// after the read copy.
	if err := r.InsertMessage(ctx, read); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertMessage(ctx, unread); err != nil {
		t.Fatal(err)
	}

	got, err := r.GetMessage(ctx, unread.ID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, &read, equalTime()); diff != "" {
		t.Errorf("Diff (-got +want)\n%s", diff)
	}
}

func TestRedis_DeleteMessage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	r := connect(t)
	msg := testMessage("9cbf8127-299b-4a84-8920-cd35ea0c084c", time.Now())
	if err := r.InsertMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetMessage(ctx, msg.ID); !errors.Is(err, api.ErrMessageNotFoundInCache) {
		t.Errorf("Got error %v after delete, want %v", err, api.ErrMessageNotFoundInCache)
	}
	n, err := r.cli.ZCard(ctx, messagePrefix).Result()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Sorted set still holds %d keys", n)
	}

	// Deleting a missing message is not an error.
	if err := r.DeleteMessage(ctx, msg.ID); err != nil {
		t.Errorf("Delete of missing message failed: %v", err)
	}
}

func TestRedis_InsertMessage_evictsOldest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := connect(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxSize+5; i++ {
		id := fmt.Sprintf("00000000-0000-0000-0000-%012d", i)
		if err := r.InsertMessage(ctx, testMessage(id, start.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	n, err := r.cli.ZCard(ctx, messagePrefix).Result()
	if err != nil {
		t.Fatal(err)
	}
	if n != maxSize {
		t.Errorf("Got %d cached messages, want %d", n, maxSize)
	}

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("00000000-0000-0000-0000-%012d", i)
		if _, err := r.GetMessage(ctx, id); !errors.Is(err, api.ErrMessageNotFoundInCache) {
			t.Errorf("Message %d was not evicted; got error %v", i, err)
		}
	}
	newest := fmt.Sprintf("00000000-0000-0000-0000-%012d", maxSize+4)
	if _, err := r.GetMessage(ctx, newest); err != nil {
		t.Errorf("Newest message missing: %v", err)
	}
}

// connect returns a Redis client backed by an empty database.
func connect(t *testing.T) *Redis {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	r, err := Connect(ctx, Options{Addr: addr})
	if err != nil {
		t.Fatalf("Could not connect to Redis: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	if err := r.cli.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Could not flush database: %v", err)
	}
	return r
}

func equalTime() cmp.Option {
	return cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
}
