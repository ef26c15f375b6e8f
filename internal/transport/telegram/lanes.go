package telegram

import (
	"context"
	"sync"

	"github.com/ashureev/opsbot/internal/bot"
)

// lanes processes messages of one chat in arrival order while different
// chats proceed in parallel. A chat's goroutine exits once its queue is
// empty.
type lanes struct {
	mu     sync.Mutex
	active map[int64]*lane
	wg     sync.WaitGroup
	handle func(ctx context.Context, msg bot.Message)
}

type lane struct {
	pending []bot.Message
}

func newLanes(handle func(ctx context.Context, msg bot.Message)) *lanes {
	return &lanes{active: make(map[int64]*lane), handle: handle}
}

func (l *lanes) submit(ctx context.Context, msg bot.Message) {
	l.mu.Lock()
	if ln, ok := l.active[msg.ChatID]; ok {
		ln.pending = append(ln.pending, msg)
		l.mu.Unlock()
		return
	}
	ln := &lane{}
	l.active[msg.ChatID] = ln
	l.wg.Add(1)
	l.mu.Unlock()

	go l.drain(ctx, msg.ChatID, ln, msg)
}

func (l *lanes) drain(ctx context.Context, chatID int64, ln *lane, msg bot.Message) {
	defer l.wg.Done()
	for {
		l.handle(ctx, msg)

		l.mu.Lock()
		if len(ln.pending) == 0 {
			delete(l.active, chatID)
			l.mu.Unlock()
			return
		}
		msg = ln.pending[0]
		ln.pending = ln.pending[1:]
		l.mu.Unlock()
	}
}

// wait blocks until every queued message has been handled.
func (l *lanes) wait() {
	l.wg.Wait()
}
