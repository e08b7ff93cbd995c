package permission

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// chartTransportKeys are request parameters that do not identify a chart.
var chartTransportKeys = []string{"timezone", "controller", "action", "collection", "contextVariables"}

// ChartHash identifies a chart query as "<type>:<sha1 of its parameters>".
// Parameters are serialized as JSON with sorted keys, so the hash of a
// request matches the hash of the stat definition it was built from.
func ChartHash(params map[string]any) (string, error) {
	clean := make(map[string]any, len(params))
	for k, v := range params {
		clean[k] = v
	}
	for _, k := range chartTransportKeys {
		delete(clean, k)
	}

	data, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("hash chart parameters: %w", err)
	}
	sum := sha1.Sum(data)
	chartType, _ := clean["type"].(string)
	return chartType + ":" + hex.EncodeToString(sum[:]), nil
}
