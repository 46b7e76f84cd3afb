package safe

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunRecovers(t *testing.T) {
	ran := false
	assert.NotPanics(t, func() {
		Run("boom", func() {
			ran = true
			panic("boom")
		})
	})
	assert.True(t, ran)
}

func TestGoRecovers(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	Go("boom", func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()
}
