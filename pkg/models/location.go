package models

// Location identifies a delivery address target. Immutable once
// constructed; supplied by the caller.
type Location struct {
	Name      string  `json:"name" validate:"required"`
	City      string  `json:"city" validate:"required"`
	Address   string  `json:"address" validate:"required"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PilotLocations are the delivery targets of the pilot area
// (Nan'an district, Chongqing).
var PilotLocations = []Location{
	{Name: "南坪步行街", City: "重庆", Address: "重庆市南岸区南坪西路", Latitude: 29.5286, Longitude: 106.5694},
	{Name: "南坪万达广场", City: "重庆", Address: "重庆市南岸区江南大道", Latitude: 29.5234, Longitude: 106.5723},
	{Name: "南滨路", City: "重庆", Address: "重庆市南岸区南滨路", Latitude: 29.5456, Longitude: 106.5812},
	{Name: "弹子石", City: "重庆", Address: "重庆市南岸区弹子石新街", Latitude: 29.5589, Longitude: 106.5934},
}

// DefaultLocation is the default monitored location.
var DefaultLocation = PilotLocations[0]

// LocationByName looks up a pilot location by its display name.
func LocationByName(name string) (Location, bool) {
	for _, loc := range PilotLocations {
		if loc.Name == name {
			return loc, true
		}
	}
	return Location{}, false
}

// DefaultProducts are the monitored SKUs crawled when the caller does
// not supply an explicit list.
var DefaultProducts = []ProductQuery{
	"农夫山泉550ml",
	"红牛250ml",
	"元气森林白桃味",
	"可口可乐330ml",
	"东方树叶茉莉花茶",
	"百威啤酒500ml",
	"江小白100ml",
	"雪花啤酒500ml",
	"乐事薯片原味",
	"奥利奥饼干",
}
