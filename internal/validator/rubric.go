package validator

import "sandwich/internal/domain"

// DefaultRubric is the scoring guidance for the three judged dimensions.
func DefaultRubric() domain.Rubric {
	return domain.Rubric{
		BoundCompatibility: `Are the two bounds the same kind of thing, and are they related to each other without reference to the bounded element?
- 0.8 to 1.0: same category and a relation that exists on its own (upper and lower limits of one quantity; thesis and antithesis of one debate).
- 0.4 to 0.7: clearly related but of different categories, or the relation is loose.
- 0.3 or less: the bounds are related only through the bounded element, i.e. they were constructed backwards from it.`,

		Containment: `Is the bounded element genuinely held between the two bounds?
- 0.8 to 1.0: it depends on both bounds and would lose its specific meaning if either were removed.
- 0.4 to 0.7: it depends on one bound strongly and on the other weakly.
- 0.3 or less: it stands on its own and the bounds are decoration.`,

		Specificity: `Does the triple say something specific, or would it fit almost anything?
- High: "g(x) <= f(x) <= h(x) with g and h sharing a limit" pins down one behaviour of f.
- Low: "the past and the future bound the present" fits every moment and every subject.
- High: "necessary and sufficient conditions for compactness bound the Heine-Borel property".
- Low: "two ideas bound a third idea".`,
	}
}
