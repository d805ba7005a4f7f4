package memory_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/shoenig/test/must"
	"github.com/ximatai/openai"
	"github.com/ximatai/openai/storage"
	"github.com/ximatai/openai/storage/memory"
	"github.com/ximatai/openai/storage/tests"
)

func TestBackend(t *testing.T) {
	tests.BackendSuite(t, memory.NewBackend[string, string]())
	tests.BackendSuiteChatMessages(t, memory.NewBackend[string, openai.ChatMessage]())
}

func TestBackend_concurrent(t *testing.T) {
	b := memory.NewBackend[string, int]()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.Set(t.Context(), fmt.Sprintf("k%02d", i), i)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		must.NoError(t, err)
	}

	all, err := storage.All(t.Context(), b, 7)
	must.NoError(t, err)
	must.Len(t, 50, all)
}
