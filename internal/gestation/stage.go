package gestation

// Stage is the display band a gestation percentage falls into.
type Stage struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

var (
	StageReady           = Stage{Code: "ready_for_delivery", Label: "Lista para el parto"}
	StageThirdTrimester  = Stage{Code: "third_trimester", Label: "Tercer trimestre"}
	StageSecondTrimester = Stage{Code: "second_trimester", Label: "Segundo trimestre"}
	StageFirstTrimester  = Stage{Code: "first_trimester", Label: "Primer trimestre"}
	StageEarly           = Stage{Code: "early_gestation", Label: "Gestación temprana"}
)

// stageBands is ordered from the highest threshold down; the first band whose
// floor the percentage reaches wins.
var stageBands = []struct {
	min   int
	stage Stage
}{
	{100, StageReady},
	{80, StageThirdTrimester},
	{50, StageSecondTrimester},
	{20, StageFirstTrimester},
}

// StageFor maps a percentage of term to its stage.
func StageFor(percentage int) Stage {
	for _, b := range stageBands {
		if percentage >= b.min {
			return b.stage
		}
	}
	return StageEarly
}
