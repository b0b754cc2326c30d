package recognition

import "context"

// Candidate is one detected item from a recognition pass. It is transient:
// either promoted to a stored item on commit or discarded on cancel, never
// persisted directly.
type Candidate struct {
	Name       string  `json:"name"`
	ExpiryDate string  `json:"expiryDate,omitempty"` // YYYY-MM-DD, empty when the provider saw no date
	Category   string  `json:"category"`             // raw provider text until normalized
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Recognizer analyzes a still image and extracts item candidates.
type Recognizer interface {
	// Recognize sends a JPEG image to the provider and returns the detected
	// candidates in provider order. Cancelling ctx aborts the call promptly.
	// A malformed or empty provider payload yields zero candidates, not an
	// error.
	Recognize(ctx context.Context, imageJPEG []byte) ([]Candidate, error)

	// Close releases provider resources.
	Close() error
}

// itemScanPrompt is the shared prompt used by all providers.
const itemScanPrompt = `Analyze this image to identify food, medicine, cosmetics, or household items for an inventory tracking app.

For each distinct item found:
1. Identify the specific name (e.g., "Greek Yogurt", "Ibuprofen").
2. Detect the Expiration/Best By date in YYYY-MM-DD format.
   - If a date is clearly visible in the image, use it.
   - If NO date is visible, you MUST estimate a reasonable expiration date based on the product type and its apparent condition (e.g., fresh produce might range from 3-14 days, opened milk 5-7 days). If no reasonable estimate exists, use null.
3. Categorize the item into: 'food', 'medicine', 'cosmetic', 'household', or 'other'.
4. Provide a brief reasoning for the date (e.g., "Date visible on label" or "Estimated shelf life for fresh bananas").
5. Provide a confidence score between 0 and 1.

Return ONLY valid JSON in this exact format:
{
  "items": [
    {
      "name": "Item Name",
      "expiryDate": "YYYY-MM-DD",
      "category": "food",
      "reasoning": "Date visible on label",
      "confidence": 0.95
    }
  ]
}

Important:
- expiryDate must be YYYY-MM-DD or null
- confidence must be a number between 0 and 1
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
