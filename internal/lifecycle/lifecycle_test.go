package lifecycle

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type fakeService struct {
	name        string
	initErr     error
	initCalled  bool
	finiCalled  bool
	initOrder   *[]string
	finiOrder   *[]string
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Initialize(ctx context.Context) error {
	f.initCalled = true
	if f.initOrder != nil {
		*f.initOrder = append(*f.initOrder, f.name)
	}
	return f.initErr
}

func (f *fakeService) Finalize(ctx context.Context) error {
	f.finiCalled = true
	if f.finiOrder != nil {
		*f.finiOrder = append(*f.finiOrder, f.name)
	}
	return nil
}

func TestContainerStartsInOrderAndStopsInReverse(t *testing.T) {
	var initOrder, finiOrder []string
	a := &fakeService{name: "a", initOrder: &initOrder, finiOrder: &finiOrder}
	b := &fakeService{name: "b", initOrder: &initOrder, finiOrder: &finiOrder}

	c := New(zap.NewNop())
	c.Register(a)
	c.Register(b)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	c.Stop(context.Background())

	if want := []string{"a", "b"}; !equal(initOrder, want) {
		t.Fatalf("init order = %v, want %v", initOrder, want)
	}
	if want := []string{"b", "a"}; !equal(finiOrder, want) {
		t.Fatalf("finalize order = %v, want %v", finiOrder, want)
	}
}

func TestContainerUnwindsOnInitFailure(t *testing.T) {
	var finiOrder []string
	a := &fakeService{name: "a", finiOrder: &finiOrder}
	b := &fakeService{name: "b", initErr: errors.New("boom")}
	d := &fakeService{name: "d", finiOrder: &finiOrder}

	c := New(zap.NewNop())
	c.Register(a)
	c.Register(b)
	c.Register(d)

	err := c.Start(context.Background())
	if err == nil {
		t.Fatal("expected Start to fail")
	}
	if d.initCalled {
		t.Fatal("expected the service after the failing one to never initialize")
	}
	if !a.finiCalled {
		t.Fatal("expected the already-started service to be finalized during unwind")
	}
	if d.finiCalled {
		t.Fatal("a service that never started should not be finalized")
	}
}

func equal(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
