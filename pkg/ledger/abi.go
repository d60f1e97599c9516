package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// certificateABI is the consumed surface of the deployed certificate
// contract. Only the functions and the mint event the pipeline needs are
// declared.
const certificateABI = `[
  {
    "type": "function",
    "name": "mintCertificate",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "recipient", "type": "address"},
      {"name": "metadataURI", "type": "string"}
    ],
    "outputs": [{"name": "tokenId", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "revokeCertificate",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "tokenId", "type": "uint256"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getCertificateInfo",
    "stateMutability": "view",
    "inputs": [{"name": "tokenId", "type": "uint256"}],
    "outputs": [
      {"name": "owner", "type": "address"},
      {"name": "issuer", "type": "address"},
      {"name": "metadataURI", "type": "string"},
      {"name": "issuedAt", "type": "uint256"},
      {"name": "isValid", "type": "bool"},
      {"name": "revoked", "type": "bool"}
    ]
  },
  {
    "type": "function",
    "name": "isCertificateValid",
    "stateMutability": "view",
    "inputs": [{"name": "tokenId", "type": "uint256"}],
    "outputs": [{"name": "", "type": "bool"}]
  },
  {
    "type": "function",
    "name": "getTotalCertificates",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "ownerOf",
    "stateMutability": "view",
    "inputs": [{"name": "tokenId", "type": "uint256"}],
    "outputs": [{"name": "", "type": "address"}]
  },
  {
    "type": "event",
    "name": "CertificateMinted",
    "inputs": [
      {"name": "tokenId", "type": "uint256", "indexed": true},
      {"name": "recipient", "type": "address", "indexed": true},
      {"name": "issuer", "type": "address", "indexed": true},
      {"name": "metadataURI", "type": "string", "indexed": false}
    ],
    "anonymous": false
  }
]`

const eventCertificateMinted = "CertificateMinted"

var certABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(certificateABI))
	if err != nil {
		panic("ledger: parsing embedded contract abi: " + err.Error())
	}
	return parsed
}
