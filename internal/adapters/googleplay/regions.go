package googleplay

// regionLang maps a storefront region to the page language requested for it.
// Unmapped regions fall back to "en".
var regionLang = map[string]string{
	"ru": "ru",
	"us": "en",
	"gb": "en",
	"de": "de",
	"fr": "fr",
	"it": "it",
	"es": "es",
	"jp": "ja",
	"kr": "ko",
	"cn": "zh-cn",
	"au": "en",
	"ca": "en",
	"br": "pt-br",
	"mx": "es",
	"in": "en",
	"tr": "tr",
	"pl": "pl",
	"nl": "nl",
	"se": "sv",
	"no": "no",
}

func LangForRegion(region string) string {
	if l, ok := regionLang[region]; ok {
		return l
	}
	return "en"
}

var allRegions = []string{
	"ru", "us", "gb", "de", "fr", "it", "es", "jp", "kr",
	"au", "ca", "br", "mx", "in", "tr", "pl", "nl", "se", "no",
}

// primaryRegions bounds an all-regions ingest: the cursor walk is expensive,
// so only the highest-volume storefronts are scraped by default.
var primaryRegions = []string{"us", "ru", "gb", "de", "fr"}

func (c *Client) Regions() []string {
	out := make([]string, len(allRegions))
	copy(out, allRegions)
	return out
}

func (c *Client) PrimaryRegions() []string {
	out := make([]string, len(primaryRegions))
	copy(out, primaryRegions)
	return out
}
