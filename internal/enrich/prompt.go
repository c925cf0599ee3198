package enrich

import "fmt"

const systemPrompt = `You are a real estate data extraction assistant. Your task is to analyze rental listing descriptions and extract structured information.

**Your goals:**
1. Create a compact 2-3 sentence summary of the offer
2. Extract the best street-level address for geocoding (if mentioned in the description)
3. Break down the costs (what's included in rent, admin fees, other costs, total monthly estimate)
4. Note any observations or red flags

**Important:**
- Focus on extracting information from the description text, structured data (price, area, rooms, etc.) has already been extracted
- Be precise with addresses, only include what's explicitly stated
- For costs, clarify what's included in rent vs. additional fees
- If information is unclear or missing, leave it as null
- Use the same currency for all cost fields (usually PLN for Polish listings)`

const userPromptTemplate = `Extract structured data from this rental listing:

**Title:** %s
**Location:** %s
**Description:**
%s

Provide your response in the requested JSON format.`

// buildUserPrompt renders the listing for the model. A missing address is
// presented as "Unknown" so the model does not invent one.
func buildUserPrompt(title string, address *string, description string) string {
	location := "Unknown"
	if address != nil && *address != "" {
		location = *address
	}
	return fmt.Sprintf(userPromptTemplate, title, location, description)
}
