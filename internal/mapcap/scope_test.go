package mapcap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeTeardownDisposesInReverseOrder(t *testing.T) {
	var order []int
	var s Scope
	s.Add(func() { order = append(order, 1) })
	s.Add(func() { order = append(order, 2) })
	s.Add(nil)

	assert.Equal(t, 2, s.Len())
	s.Teardown()

	assert.Equal(t, []int{2, 1}, order)
	assert.Zero(t, s.Len())
}

func TestScopeAddAfterTeardownDisposesImmediately(t *testing.T) {
	var s Scope
	s.Teardown()

	called := false
	s.Add(func() { called = true })
	assert.True(t, called)
}

func TestOnceRunsOnce(t *testing.T) {
	n := 0
	d := Once(func() { n++ })
	d()
	d()
	assert.Equal(t, 1, n)
}

func TestParseTool(t *testing.T) {
	tool, ok := ParseTool("rect")
	assert.True(t, ok)
	assert.Equal(t, ToolRectangle, tool)

	_, ok = ParseTool("circle")
	assert.False(t, ok)
}
