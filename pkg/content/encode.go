package content

import "github.com/mitchellh/mapstructure"

// Encode renders a Content back into the bridge wire shape, msgtype
// included. Unknown round-trips its original raw payload untouched.
func Encode(c Content) map[string]any {
	if u, ok := c.(Unknown); ok {
		if u.Raw != nil {
			return u.Raw
		}
		return map[string]any{"body": u.Body}
	}

	out := map[string]any{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
	})
	if err == nil {
		_ = dec.Decode(c)
	}
	out["msgtype"] = c.Kind()
	return out
}
