package registry

// ABI fragments shared by the engine, planners and classifier.
const (
	// ERC20MinimalABI covers the credit-token surface the engine needs:
	// allowance negotiation plus the balance/decimals reads used for
	// insufficient-balance detection and fee display.
	ERC20MinimalABI = `[
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"increaseAllowance","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"addedValue","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
	]`

	// VersionRegistryABI is the fixed on-chain contract surface. The proof
	// blob and signal vector are opaque to this CLI; they are produced by the
	// prover service and passed through unmodified.
	VersionRegistryABI = `[
		{"name":"endorseVersion","type":"function","stateMutability":"nonpayable","inputs":[{"name":"versionId","type":"bytes32"},{"name":"proof","type":"bytes"},{"name":"signals","type":"uint256[]"}],"outputs":[]},
		{"name":"mintAsset","type":"function","stateMutability":"nonpayable","inputs":[{"name":"assetId","type":"bytes32"},{"name":"uri","type":"string"},{"name":"proof","type":"bytes"},{"name":"signals","type":"uint256[]"}],"outputs":[{"name":"tokenId","type":"uint256"}]},
		{"name":"endorsementFee","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"mintFee","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"isEndorsed","type":"function","stateMutability":"view","inputs":[{"name":"endorser","type":"address"},{"name":"versionId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"assetMinted","type":"function","stateMutability":"view","inputs":[{"name":"assetId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"creditToken","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"VersionEndorsed","type":"event","inputs":[{"name":"endorser","type":"address","indexed":true},{"name":"versionId","type":"bytes32","indexed":true},{"name":"feePaid","type":"uint256","indexed":false}]},
		{"name":"AssetMinted","type":"event","inputs":[{"name":"owner","type":"address","indexed":true},{"name":"assetId","type":"bytes32","indexed":true},{"name":"tokenId","type":"uint256","indexed":false},{"name":"feePaid","type":"uint256","indexed":false}]},
		{"name":"InsufficientAllowance","type":"error","inputs":[{"name":"required","type":"uint256"},{"name":"available","type":"uint256"}]},
		{"name":"InsufficientBalance","type":"error","inputs":[{"name":"required","type":"uint256"},{"name":"available","type":"uint256"}]},
		{"name":"AlreadyEndorsed","type":"error","inputs":[{"name":"endorser","type":"address"},{"name":"versionId","type":"bytes32"}]},
		{"name":"AlreadyMinted","type":"error","inputs":[{"name":"assetId","type":"bytes32"}]},
		{"name":"InvalidTarget","type":"error","inputs":[{"name":"id","type":"bytes32"}]}
	]`
)
