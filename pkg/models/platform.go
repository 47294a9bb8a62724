package models

// Platform describes one supported delivery storefront.
type Platform struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	H5URL   string `json:"h5_url"`
	Enabled bool   `json:"enabled"`
}

// Platforms is the catalog of supported storefronts keyed by platform key.
var Platforms = map[string]Platform{
	"meituan": {Key: "meituan", Name: "美团闪购", H5URL: "https://h5.waimai.meituan.com", Enabled: true},
	"eleme":   {Key: "eleme", Name: "饿了么", H5URL: "https://h5.ele.me", Enabled: true},
}
