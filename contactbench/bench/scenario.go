package bench

// PageVariant names a pagination position a scenario exercises. The page
// number is substituted at run time: first is page 1, last is computed from
// the total count, middle is halfway, random is uniform in range.
type PageVariant string

const (
	PageFirst  PageVariant = "first"
	PageMiddle PageVariant = "middle"
	PageLast   PageVariant = "last"
	PageRandom PageVariant = "random"
)

// Scenario is a named, repeatable QueryPlan template. Params are raw
// parameters in the wire form the plan builder accepts; a fresh plan is
// built from them for every repetition.
type Scenario struct {
	Name         string
	Entity       string
	Params       map[string]string
	Repetitions  int // 0 means the harness default
	PageVariants []PageVariant
}

// DefaultCatalogue returns the standard scenario suite: list loads, single
// and multi field sorts, combined filters, search, a complex query, and a
// pagination sweep.
func DefaultCatalogue() []Scenario {
	return []Scenario{
		{
			Name:   "initial_list_load",
			Params: map[string]string{"page_size": "1000"},
		},
		{
			Name:   "filter_by_name",
			Params: map[string]string{"first_name__icontains": "John"},
		},
		{
			Name:   "sort_by_created",
			Params: map[string]string{"ordering": "-created"},
		},
		{
			Name:   "sort_by_points",
			Params: map[string]string{"ordering": "relationship__points"},
		},
		{
			Name:   "sort_by_city",
			Params: map[string]string{"ordering": "address__city"},
		},
		{
			Name:   "multi_field_sort",
			Params: map[string]string{"ordering": "-relationship__points,last_name,first_name"},
		},
		{
			Name:   "multi_field_sort_geo",
			Params: map[string]string{"ordering": "address__country,address__city,-created"},
		},
		{
			Name: "filter_and_sort",
			Params: map[string]string{
				"address__city__icontains": "New York",
				"ordering":                 "-relationship__points",
			},
		},
		{
			Name: "multiple_filters",
			Params: map[string]string{
				"gender":                      "M",
				"relationship__points__gte":   "5000",
				"address__country__icontains": "United",
			},
		},
		{
			Name:   "search",
			Params: map[string]string{"search": "John"},
		},
		{
			Name: "complex_query",
			Params: map[string]string{
				"gender":                      "M",
				"relationship__points__gte":   "1000",
				"address__country__icontains": "United",
				"ordering":                    "-relationship__last_activity",
			},
		},
		{
			Name:         "pagination_pages",
			Params:       map[string]string{"page_size": "50"},
			PageVariants: []PageVariant{PageFirst, PageMiddle, PageLast, PageRandom},
		},
	}
}
