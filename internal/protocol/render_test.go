package protocol

import "testing"

type point struct {
	X, Y   int
	hidden bool
}

type node struct {
	Next *node
}

func TestRender(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"string", "Hello, world", `"Hello, world"`},
		{"int", 42, "42"},
		{"float", 2.5, "2.5"},
		{"float32", float32(0.1), "0.1"},
		{"bool", true, "true"},
		{"nil", nil, "nil"},
		{"slice", []string{"a", "b"}, `["a", "b"]`},
		{"nested slice", [][]int{{1}, {2, 3}}, "[[1], [2, 3]]"},
		{"nil slice", []int(nil), "nil"},
		{"struct", point{X: 1, Y: 2, hidden: true}, "point{X: 1, Y: 2}"},
		{"pointer", &point{X: 1}, "&point{X: 1, Y: 0}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Render(tc.in); got != tc.want {
				t.Errorf("Render(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRender_MapKeysSorted(t *testing.T) {
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	want := `map["a": 1, "b": 2, "c": 3]`
	for i := 0; i < 10; i++ {
		if got := Render(m); got != want {
			t.Fatalf("Render not deterministic: got %q, want %q", got, want)
		}
	}
}

func TestRender_CyclicValue(t *testing.T) {
	n := &node{}
	n.Next = n
	// Must terminate and not panic.
	if got := Render(n); got != "&node{Next: &...}" {
		t.Errorf("got %q", got)
	}
}

func TestRender_DepthCapped(t *testing.T) {
	deep := []any{}
	v := any(deep)
	for i := 0; i < 20; i++ {
		v = []any{v}
	}
	got := Render(v)
	if got == "" {
		t.Fatal("expected elided rendering, got empty string")
	}
}
