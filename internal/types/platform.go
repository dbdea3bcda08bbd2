package types

// Platform identifies an external platform a wallet is driven through.
type Platform string

const (
	// PlatformTestChain is the test blockchain (native transactions).
	PlatformTestChain Platform = "testchain"
	// PlatformDex is the decentralized-exchange points API.
	PlatformDex Platform = "dex"
	// PlatformMarket is the prediction-market API.
	PlatformMarket Platform = "market"
	// PlatformSystem marks internal activities that are not tied to an
	// external platform, such as vault access failures.
	PlatformSystem Platform = "system"
)
