package constraint

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"goplan/domain/core"
)

// Composite concatenates same-polarity constraints along the output axis.
// Members are expected to have reflected a robot model already, so the
// composite itself is born ready; Reflect forwards to every member.
type Composite struct {
	members  []Constraint
	polarity Polarity
	dim      int
}

// NewIneqComposite combines inequality constraints into one
func NewIneqComposite(members ...Constraint) (*Composite, error) {
	return newComposite(Inequality, members)
}

// NewEqComposite combines equality constraints into one
func NewEqComposite(members ...Constraint) (*Composite, error) {
	return newComposite(Equality, members)
}

func newComposite(polarity Polarity, members []Constraint) (*Composite, error) {
	if len(members) == 0 {
		return nil, core.ErrEmptyComposite
	}
	dim := 0
	for _, m := range members {
		if m.Polarity() != polarity {
			return nil, fmt.Errorf("%w: %s member in %s composite", core.ErrMixedPolarity, m.Polarity(), polarity)
		}
		dim += m.Dim()
	}
	return &Composite{
		members:  append([]Constraint(nil), members...),
		polarity: polarity,
		dim:      dim,
	}, nil
}

// Polarity returns the shared polarity of all members
func (c *Composite) Polarity() Polarity { return c.polarity }

// Dim returns the summed output dimension
func (c *Composite) Dim() int { return c.dim }

// Members returns the member constraints in concatenation order
func (c *Composite) Members() []Constraint {
	return append([]Constraint(nil), c.members...)
}

// Reflect forwards robot state to every member
func (c *Composite) Reflect(model RobotState) error {
	for _, m := range c.members {
		if err := m.Reflect(model); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate concatenates member residuals and Jacobians along the output axis,
// preserving per-configuration alignment
func (c *Composite) Evaluate(qs *mat.Dense, withJacobian bool) (*mat.Dense, []*mat.Dense, error) {
	n, configDim := qs.Dims()

	values := mat.NewDense(n, c.dim, nil)
	var jacs []*mat.Dense
	if withJacobian {
		jacs = make([]*mat.Dense, n)
		for i := range jacs {
			jacs[i] = mat.NewDense(c.dim, configDim, nil)
		}
	}

	offset := 0
	for _, m := range c.members {
		mv, mj, err := m.Evaluate(qs, withJacobian)
		if err != nil {
			return nil, nil, err
		}
		mdim := m.Dim()
		for i := 0; i < n; i++ {
			for k := 0; k < mdim; k++ {
				values.Set(i, offset+k, mv.At(i, k))
			}
			if withJacobian {
				for k := 0; k < mdim; k++ {
					jacs[i].SetRow(offset+k, mj[i].RawRowView(k))
				}
			}
		}
		offset += mdim
	}
	return values, jacs, nil
}
