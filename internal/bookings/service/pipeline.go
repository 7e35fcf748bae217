package service

import "context"

// step is one named stage of a request pipeline operating on state S.
type step[S any] struct {
	Name    string
	Execute func(ctx context.Context, s *S) error
}

func newStep[S any](name string, execute func(ctx context.Context, s *S) error) step[S] {
	return step[S]{Name: name, Execute: execute}
}

// pipeline runs its steps in order and stops at the first failure. The
// failing step's error is returned unchanged so typed errors reach the
// caller as-is.
type pipeline[S any] struct {
	name  string
	steps []step[S]
}

func newPipeline[S any](name string, steps ...step[S]) *pipeline[S] {
	return &pipeline[S]{name: name, steps: steps}
}

// Run returns the name of the failing step along with its error.
func (p *pipeline[S]) Run(ctx context.Context, s *S) (string, error) {
	for _, st := range p.steps {
		if err := ctx.Err(); err != nil {
			return st.Name, err
		}
		if err := st.Execute(ctx, s); err != nil {
			return st.Name, err
		}
	}
	return "", nil
}
