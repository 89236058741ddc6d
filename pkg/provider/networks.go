package provider

import "time"

const (
	NetworkMain  = "main"
	NetworkTest  = "test"
	NetworkLocal = "local"
)

const (
	EmptyAddress = "0:0000000000000000000000000000000000000000000000000000000000000000"

	SafeMultisigABI    = "https://everscale-connect.svoi.dev/contracts/abi/SafeMultisigWallet.abi.json"
	BackendProviderURL = "https://everscale-connect.svoi.dev/EverscaleBackendProvider/"

	DefaultWatchInterval = 10 * time.Second
)

// ABIURLs lists well-known contract interfaces.
var ABIURLs = map[string]string{
	"SAFE_MULTISIG":             SafeMultisigABI,
	"ERC721":                    "https://everscale-connect.svoi.dev/contracts/abi/ERC721.abi.json",
	"TIP31_ROOT":                "https://everscale-connect.svoi.dev/contracts/abi/TIP3.1/TokenRoot.abi.json",
	"TIP31_WALLET":              "https://everscale-connect.svoi.dev/contracts/abi/TIP3.1/TokenWallet.abi.json",
	"TIP43_COLLECTION":          "https://everscale-connect.svoi.dev/contracts/abi/TIP4/ITIP4_3Collection.abi.json",
	"TIP41_COLLECTION":          "https://everscale-connect.svoi.dev/contracts/abi/TIP4/ITIP4_1Collection.abi.json",
	"TIP42_COLLECTION_METADATA": "https://everscale-connect.svoi.dev/contracts/abi/TIP4/ITIP4_2JSON_Metadata.abi.json",
	"TIP43_NFT":                 "https://everscale-connect.svoi.dev/contracts/abi/TIP4/ITIP4_3NFT.abi.json",
	"TIP41_NFT":                 "https://everscale-connect.svoi.dev/contracts/abi/TIP4/ITIP4_1NFT.abi.json",
	"TIP6":                      "https://everscale-connect.svoi.dev/contracts/abi/TIP6/ITIP_6.abi.json",
	"NFT_INDEX_HELPER":          "https://everscale-connect.svoi.dev/contracts/abi/NftIndexHelper/NFTIndexHelper.abi.json",
	"NFT_INDEX_BASIS":           "https://everscale-connect.svoi.dev/contracts/abi/TIP4/IndexBasis.abi.json",
}

var WellKnownAddresses = map[string]string{
	"NFT_INDEX_HELPER": "0:388820c348e6b2a5e38c8c8f1bf4088cdc384fc67219bd064f60c7d8d1092eb1",
}

// Servers maps a network name to its default endpoint.
var Servers = map[string]string{
	NetworkMain: "alwaysonlineevermainnode.svoi.dev",
	NetworkTest: "net.ton.dev",
	"svoi":      "alwaysonlineevermainnode.svoi.dev",
}

var serverNetworks = map[string]string{
	"main.ton.dev":                      NetworkMain,
	"main1.ton.dev":                     NetworkMain,
	"main2.ton.dev":                     NetworkMain,
	"main3.ton.dev":                     NetworkMain,
	"main4.ton.dev":                     NetworkMain,
	"alwaysonlineevermainnode.svoi.dev": NetworkMain,
	"eri01.main.everos.dev":             NetworkMain,
	"gra01.main.everos.dev":             NetworkMain,
	"gra02.main.everos.dev":             NetworkMain,
	"lim01.main.everos.dev":             NetworkMain,
	"rbx01.main.everos.dev":             NetworkMain,
	"net.ton.dev":                       NetworkTest,
	"net1.ton.dev":                      NetworkTest,
	"net2.ton.dev":                      NetworkTest,
	"eri01.net.everos.dev":              NetworkTest,
	"rbx01.net.everos.dev":              NetworkTest,
	"gra01.net.everos.dev":              NetworkTest,
	"localhost":                         NetworkLocal,
}

var explorers = map[string]string{
	NetworkTest:  "net.ever.live",
	NetworkMain:  "main.ever.live",
	NetworkLocal: "main.ever.live",
}

// Extension wallets report a connection label instead of a server.
var connectionServers = map[string]string{
	"Mainnet (GQL 3)":       "alwaysonlineevermainnode.svoi.dev",
	"Mainnet (GQL 2)":       "alwaysonlineevermainnode.svoi.dev",
	"Mainnet (GQL 1)":       "alwaysonlineevermainnode.svoi.dev",
	"Mainnet (ADNL)":        "alwaysonlineevermainnode.svoi.dev",
	"mainnet":               "alwaysonlineevermainnode.svoi.dev",
	"Testnet":               "lim01.main.everos.dev",
	"testnet":               "lim01.main.everos.dev",
	"fld.ton.dev":           "lim01.main.everos.dev",
	"lim01.main.everos.dev": "lim01.main.everos.dev",
}

// The extension treats its testnet endpoint as test regardless of the host.
var extensionNetworks = map[string]string{
	"lim01.main.everos.dev": NetworkTest,
	"fld.ton.dev":           NetworkTest,
}

// ResolveNetwork names server. Unknown servers are named after themselves.
func ResolveNetwork(server string) Network {
	return resolve(server, nil)
}

func resolve(server string, overrides map[string]string) Network {
	name, ok := overrides[server]
	if !ok {
		name, ok = serverNetworks[server]
	}
	if !ok {
		name = server
	}
	return Network{Server: server, Name: name, Explorer: explorers[name]}
}

// ConnectionServer maps an extension connection label to a server. Labels
// that are not in the table are assumed to be servers already.
func ConnectionServer(selected string) string {
	if server, ok := connectionServers[selected]; ok {
		return server
	}
	return selected
}
