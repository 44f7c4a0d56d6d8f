package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"callwatch/internal/llm"
	"callwatch/internal/token"
)

const notAvailable = "n/a"

const persona = `You are an expert cryptocurrency trader and technical analyst. You have comprehensive knowledge of on-chain metrics, volume, price data, and market trends. Your task is to analyze the provided token data, assess metrics such as trading volume, liquidity, price trends, and risk factors, and then provide a detailed technical analysis along with a recommendation on whether the token is a good buy.`

const reportStructure = `Your analysis should include:

1. **Summary of Key Metrics:**
- Explain briefly what each metric means in the context of crypto token performance.

2. **Detailed Analysis:**
- For each key metric, discuss its current value, historical context (if provided), and what it might indicate about the token's performance.
- Analyze any patterns or anomalies. For example, if there is a significant change in volume or price, discuss potential causes and implications.
- Evaluate the token's technical signals (such as support/resistance levels, trend lines, moving averages, RSI, MACD, etc.) and explain how they contribute to your overall conclusion.

3. **Comparative Insights and Conclusion:**
- Based on the metrics, provide an overall assessment of the token's current state and potential future performance.
- Explain your reasoning step-by-step, showing how the data supports the conclusion you reach.
- Include any potential risks or red flags indicated by the data.
- Conclude with a summary statement that clearly outlines your overall findings.

4. **Transparency in Reasoning:**
- Ensure that your analysis is comprehensive and shows exactly how each data point influenced your conclusion.
- Use clear, technical language suitable for an audience familiar with crypto markets, while ensuring that each point is well-explained.`

const dataIntro = `You are an expert financial analyst specializing in cryptocurrency markets. You are receiving calls in a Telegram channel on crypto tokens that need to be analyzed. The contract address is extracted from the message to query the CoinGecko API and provide you with the results on the token data. Please perform a highly detailed and in-depth analysis of the token using the data provided. Only consider the data points pertaining to the price and market data of the token in your analysis.`

const textIntro = `You are an expert financial analyst specializing in cryptocurrency markets. Please perform a highly detailed and in-depth analysis of the token called out in the message below.

Only describe your analysis where it is used to educate me on your analysis logic. Otherwise, keep your response concise, but detailed, only mentioning information regarding your analysis.`

// Assemble builds the ordered segments for the completion call. A nil
// record selects the text only template.
func Assemble(rec *token.Record, text string) []llm.Message {
	if rec == nil {
		return []llm.Message{llm.User(withoutData(text))}
	}
	return []llm.Message{llm.System(persona), llm.User(withData(rec, text))}
}

func withoutData(text string) string {
	var b strings.Builder
	b.WriteString(textIntro)
	b.WriteString("\n\n")
	b.WriteString(reportStructure)
	b.WriteString("\n\nMessage below:\n")
	b.WriteString(text)
	return b.String()
}

func withData(rec *token.Record, text string) string {
	var b strings.Builder
	b.WriteString(dataIntro)
	b.WriteString("\n\n")
	b.WriteString(reportStructure)
	b.WriteString("\n\nDo not reflect the data used in your analysis in your response. Here is the token data to be used in your analysis:\n\n")

	for _, f := range Fields(rec) {
		fmt.Fprintf(&b, "%s : %s\n", f.Label, f.Value)
	}

	b.WriteString("\nHere is the Telegram message that calls out the token to be analyzed. Use any token information in this message in your analysis as well, if available:\n")
	b.WriteString(text)
	return b.String()
}

// Field is one labelled value of the data template.
type Field struct {
	Label string
	Value string
}

// Fields renders every scalar of a record in template order. Absent values
// render as n/a.
func Fields(rec *token.Record) []Field {
	fields := []Field{
		{"Token Name", orNA(rec.Name)},
		{"Token Symbol", orNA(rec.Symbol)},
		{"Token Platform", orNA(rec.PlatformID)},
		{"Contract Address", orNA(rec.ContractAddress)},
		{"Token Price", dec(rec.CurrentPriceUSD)},
		{"Token Market Cap", dec(rec.MarketCapUSD)},
		{"Token 24h High", dec(rec.High24hUSD)},
		{"Token 24h Low", dec(rec.Low24hUSD)},
		{"Token All Time High", dec(rec.ATHUSD)},
		{"Token All Time High Change Percentage", dec(rec.ATHChangePctUSD)},
		{"Token All Time High Date", orNA(rec.ATHDate)},
		{"Token All Time Low", dec(rec.ATLUSD)},
		{"Sentiment Thumbs Up Ratio", dec(rec.SentimentUpPct)},
		{"Sentiment Thumbs Down Ratio", dec(rec.SentimentDownPct)},
		{"Token Description", orNA(rec.DescriptionEN)},
		{"Token Localized Name", orNA(rec.LocalizationEN)},
	}
	for _, h := range token.Horizons {
		fields = append(fields, Field{"Price Change Percentage in " + string(h), dec(rec.PriceChangePct[h])})
	}
	fields = append(fields,
		Field{"Market Cap Rank - All Coins on Coingecko", integer(rec.MarketCapRank)},
		Field{"Market Cap Change Percentage in 24h", dec(rec.MarketCapChangePct24h)},
		Field{"Market Cap to Fully Diluted Valuation Ratio", dec(rec.MarketCapFDVRatio)},
		Field{"Twitter Followers", integer(rec.TwitterFollowers)},
		Field{"Exchanges Listed", orNA(strings.Join(rec.ListedExchanges, " - "))},
	)
	return fields
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

func dec(d decimal.NullDecimal) string {
	if !d.Valid {
		return notAvailable
	}
	return d.Decimal.String()
}

func integer(n *int64) string {
	if n == nil {
		return notAvailable
	}
	return strconv.FormatInt(*n, 10)
}
